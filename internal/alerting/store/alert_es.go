package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/olivere/elastic/v7"
	"github.com/rs/zerolog/log"
)

const defaultBucketLimit = 10000

// NewElasticClient 关闭嗅探与健康检查，直连配置的地址
func NewElasticClient(c *config.ElasticsearchConfig) (*elastic.Client, error) {
	opts := []elastic.ClientOptionFunc{
		elastic.SetURL(c.URLs...),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	}
	if c.Username != "" {
		opts = append(opts, elastic.SetBasicAuth(c.Username, c.Password))
	}
	client, err := elastic.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return client, nil
}

// AlertESStore 告警、事件与告警流水索引
type AlertESStore struct {
	Client        *elastic.Client
	AlertIndex    string
	EventIndex    string
	AlertLogIndex string
	BucketLimit   int
}

func NewAlertESStore(client *elastic.Client, c *config.ElasticsearchConfig) *AlertESStore {
	limit := c.BucketLimit
	if limit <= 0 {
		limit = defaultBucketLimit
	}
	return &AlertESStore{
		Client:        client,
		AlertIndex:    c.AlertIndex,
		EventIndex:    c.EventIndex,
		AlertLogIndex: c.AlertLogIndex,
		BucketLimit:   limit,
	}
}

func terms(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func int64Terms(values []int64) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

// AlertsByIDs 按 id 加载告警，返回顺序与 ids 一致，缺失的 id 跳过
func (s *AlertESStore) AlertsByIDs(ctx context.Context, ids []string) ([]*model.AlertDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := s.Client.Search(s.AlertIndex).
		Query(elastic.NewTermsQuery("id", terms(ids)...)).
		Size(len(ids)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search alerts: %w", err)
	}
	byID := make(map[string]*model.AlertDocument, len(ids))
	for _, hit := range res.Hits.Hits {
		var a model.AlertDocument
		if err := json.Unmarshal(hit.Source, &a); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", hit.Id, err)
		}
		if a.ID == "" {
			a.ID = hit.Id
		}
		byID[a.ID] = &a
	}
	out := make([]*model.AlertDocument, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, a)
		}
	}
	return out, nil
}

// AlertsByRefs 按 (alert_id, strategy_id) 加载，strategy_id 不一致的文档视为不存在
func (s *AlertESStore) AlertsByRefs(ctx context.Context, refs []model.AlertRef) ([]*model.AlertDocument, error) {
	ids := make([]string, 0, len(refs))
	want := make(map[string]int64, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
		want[r.ID] = r.StrategyID
	}
	alerts, err := s.AlertsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := alerts[:0]
	for _, a := range alerts {
		if sid := want[a.ID]; sid != 0 && a.StrategyID != sid {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// LatestEvent 按 (time, dedupe_md5) 查最近一次异常事件
func (s *AlertESStore) LatestEvent(ctx context.Context, latestTime int64, dedupeMD5 string) (*model.Event, error) {
	q := elastic.NewBoolQuery().Filter(
		elastic.NewTermQuery("dedupe_md5", dedupeMD5),
		elastic.NewTermQuery("time", latestTime),
	)
	res, err := s.Client.Search(s.EventIndex).Query(q).Sort("time", false).Size(1).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search event: %w", err)
	}
	if res.Hits == nil || len(res.Hits.Hits) == 0 {
		return nil, fmt.Errorf("event %s@%d: %w", dedupeMD5, latestTime, model.ErrNotFound)
	}
	var e model.Event
	if err := json.Unmarshal(res.Hits.Hits[0].Source, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}

// AckReasons 告警的确认说明，按时间倒序
func (s *AlertESStore) AckReasons(ctx context.Context, alertIDs []string) ([]string, error) {
	if len(alertIDs) == 0 {
		return nil, nil
	}
	q := elastic.NewBoolQuery().Filter(
		elastic.NewTermsQuery("alert_id", terms(alertIDs)...),
		elastic.NewTermQuery("op_type", "ACK"),
	)
	res, err := s.Client.Search(s.AlertLogIndex).Query(q).Sort("create_time", false).Size(100).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search alert log: %w", err)
	}
	if res.Hits == nil {
		return nil, nil
	}
	out := make([]string, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var doc struct {
			Description string `json:"description"`
		}
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode alert log %s: %w", hit.Id, err)
		}
		if doc.Description != "" {
			out = append(out, doc.Description)
		}
	}
	return out, nil
}

// AlertCount 策略下未恢复告警的数量
type AlertCount struct {
	Alert    int
	Shielded int
}

func abnormalQuery(bizID int64) *elastic.BoolQuery {
	return elastic.NewBoolQuery().Filter(
		elastic.NewTermQuery("event.bk_biz_id", bizID),
		elastic.NewTermQuery("status", string(model.AlertAbnormal)),
	)
}

// StrategyAlertCounts 按 (strategy_id, is_shielded) 聚合未恢复告警
func (s *AlertESStore) StrategyAlertCounts(ctx context.Context, bizID int64, strategyIDs []int64) (map[int64]AlertCount, error) {
	out := make(map[int64]AlertCount, len(strategyIDs))
	if len(strategyIDs) == 0 {
		return out, nil
	}
	q := abnormalQuery(bizID).Filter(elastic.NewTermsQuery("strategy_id", int64Terms(strategyIDs)...))
	agg := elastic.NewTermsAggregation().Field("strategy_id").Size(s.BucketLimit).
		SubAggregation("shield_status", elastic.NewTermsAggregation().Field("is_shielded").Size(2))
	res, err := s.Client.Search(s.AlertIndex).Query(q).Size(0).Aggregation("strategy_id", agg).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate alert counts: %w", err)
	}
	items, ok := res.Aggregations.Terms("strategy_id")
	if !ok {
		return out, nil
	}
	for _, b := range items.Buckets {
		id, err := bucketInt(b)
		if err != nil {
			log.Warn().Err(err).Msg("skip alert count bucket")
			continue
		}
		var c AlertCount
		if sub, ok := b.Terms("shield_status"); ok {
			for _, sb := range sub.Buckets {
				if bucketBool(sb) {
					c.Shielded += int(sb.DocCount)
				} else {
					c.Alert += int(sb.DocCount)
				}
			}
		}
		out[id] = c
	}
	return out, nil
}

// AbnormalStrategyIDs 存在未恢复告警的策略。shielded 为 true 时只看已屏蔽告警，否则只看未屏蔽告警
func (s *AlertESStore) AbnormalStrategyIDs(ctx context.Context, bizID int64, shielded bool) ([]int64, error) {
	q := abnormalQuery(bizID)
	if shielded {
		q = q.Filter(elastic.NewTermQuery("is_shielded", true))
	} else {
		q = q.MustNot(elastic.NewTermQuery("is_shielded", true))
	}
	agg := elastic.NewTermsAggregation().Field("strategy_id").Size(s.BucketLimit)
	res, err := s.Client.Search(s.AlertIndex).Query(q).Size(0).Aggregation("strategy_id", agg).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate abnormal strategies: %w", err)
	}
	items, ok := res.Aggregations.Terms("strategy_id")
	if !ok {
		return nil, nil
	}
	ids := make([]int64, 0, len(items.Buckets))
	for _, b := range items.Buckets {
		id, err := bucketInt(b)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func bucketInt(b *elastic.AggregationBucketKeyItem) (int64, error) {
	if b.KeyNumber != "" {
		if n, err := b.KeyNumber.Int64(); err == nil {
			return n, nil
		}
	}
	return strconv.ParseInt(fmt.Sprint(b.Key), 10, 64)
}

// bucketBool 布尔字段的桶 key 为 0/1，key_as_string 为 false/true
func bucketBool(b *elastic.AggregationBucketKeyItem) bool {
	if b.KeyAsString != nil {
		return *b.KeyAsString == "true"
	}
	return fmt.Sprint(b.Key) == "1"
}
