package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/redis/go-redis/v9"
)

// CMDB 缓存的 key 布局，由外部刷新任务写入
const (
	keyHost            = "cmdb.host"
	keyHostID          = "cmdb.host_id"
	keyServiceInstance = "cmdb.service_instance"
	keyBusiness        = "cmdb.business"
	keySet             = "cmdb.set"
	keyModule          = "cmdb.module"
	keyTopoPrefix      = "cmdb.topo."
	keyStrategyPrefix  = "strategy:"
)

// NewRedisClientFromConfig constructs a redis client from app config.
func NewRedisClientFromConfig(c *config.RedisConfig) *redis.Client {
	if c == nil {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
}

// RedisCMDB 基于 redis 的只读 CMDB 缓存
type RedisCMDB struct {
	R *redis.Client
}

func NewRedisCMDB(rdb *redis.Client) *RedisCMDB { return &RedisCMDB{R: rdb} }

func (c *RedisCMDB) HostByID(ctx context.Context, hostID int64) (*model.Host, error) {
	var h model.Host
	if err := hgetJSON(ctx, c.R, keyHostID, strconv.FormatInt(hostID, 10), &h); err != nil {
		return nil, fmt.Errorf("get host %d: %w", hostID, err)
	}
	return &h, nil
}

func (c *RedisCMDB) HostByIP(ctx context.Context, ip string, cloudID int64) (*model.Host, error) {
	var h model.Host
	if err := hgetJSON(ctx, c.R, keyHost, model.HostKey(ip, cloudID), &h); err != nil {
		return nil, fmt.Errorf("get host %s: %w", model.HostKey(ip, cloudID), err)
	}
	return &h, nil
}

// HostsByIP 不区分管控区域，按 ip 扫描
func (c *RedisCMDB) HostsByIP(ctx context.Context, ips []string) ([]*model.Host, error) {
	var hosts []*model.Host
	for _, ip := range ips {
		iter := c.R.HScan(ctx, keyHost, 0, ip+"|*", 100).Iterator()
		field := true
		for iter.Next(ctx) {
			// HSCAN 交替返回 field 和 value
			if field {
				field = false
				continue
			}
			field = true
			var h model.Host
			if err := json.Unmarshal([]byte(iter.Val()), &h); err != nil {
				return nil, fmt.Errorf("decode host: %w", err)
			}
			hosts = append(hosts, &h)
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("scan hosts %s: %w", ip, err)
		}
	}
	return hosts, nil
}

func (c *RedisCMDB) ServiceInstance(ctx context.Context, id int64) (*model.ServiceInstance, error) {
	var s model.ServiceInstance
	if err := hgetJSON(ctx, c.R, keyServiceInstance, strconv.FormatInt(id, 10), &s); err != nil {
		return nil, fmt.Errorf("get service instance %d: %w", id, err)
	}
	return &s, nil
}

func (c *RedisCMDB) Business(ctx context.Context, bizID int64) (*model.Business, error) {
	var b model.Business
	if err := hgetJSON(ctx, c.R, keyBusiness, strconv.FormatInt(bizID, 10), &b); err != nil {
		return nil, fmt.Errorf("get business %d: %w", bizID, err)
	}
	return &b, nil
}

// Sets 缺失的 id 不出现在结果中
func (c *RedisCMDB) Sets(ctx context.Context, ids []int64) (map[int64]*model.Set, error) {
	out := make(map[int64]*model.Set, len(ids))
	err := hmgetJSON(ctx, c.R, keySet, ids, func(id int64, raw string) error {
		var s model.Set
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return err
		}
		out[id] = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get sets: %w", err)
	}
	return out, nil
}

func (c *RedisCMDB) Modules(ctx context.Context, ids []int64) (map[int64]*model.Module, error) {
	out := make(map[int64]*model.Module, len(ids))
	err := hmgetJSON(ctx, c.R, keyModule, ids, func(id int64, raw string) error {
		var m model.Module
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return err
		}
		out[id] = &m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get modules: %w", err)
	}
	return out, nil
}

func (c *RedisCMDB) TopoTree(ctx context.Context, bizID int64) (*model.TopoTree, error) {
	raw, err := c.R.Get(ctx, keyTopoPrefix+strconv.FormatInt(bizID, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get topo %d: %w", bizID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get topo %d: %w", bizID, err)
	}
	var t model.TopoTree
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode topo %d: %w", bizID, err)
	}
	return &t, nil
}

// RedisStrategyCache 策略快照缓存 strategy:<id>
type RedisStrategyCache struct {
	R *redis.Client
}

func NewRedisStrategyCache(rdb *redis.Client) *RedisStrategyCache {
	return &RedisStrategyCache{R: rdb}
}

func (c *RedisStrategyCache) GetStrategy(ctx context.Context, id int64) (*model.Strategy, error) {
	raw, err := c.R.Get(ctx, keyStrategyPrefix+strconv.FormatInt(id, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get strategy %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy %d: %w", id, err)
	}
	var s model.Strategy
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode strategy %d: %w", id, err)
	}
	return &s, nil
}

func hgetJSON(ctx context.Context, rdb *redis.Client, key, field string, v any) error {
	raw, err := rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

func hmgetJSON(ctx context.Context, rdb *redis.Client, key string, ids []int64, fn func(int64, string) error) error {
	if len(ids) == 0 {
		return nil
	}
	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = strconv.FormatInt(id, 10)
	}
	vals, err := rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if err := fn(ids[i], s); err != nil {
			return err
		}
	}
	return nil
}
