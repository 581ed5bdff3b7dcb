package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/database"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/strategy/filter"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const relateTypeAction = "ACTION"

// StrategyPgStore 策略库的只读视图
type StrategyPgStore struct {
	DB       *database.Database
	TenantID string
}

func NewStrategyPgStore(db *database.Database, tenantID string) *StrategyPgStore {
	return &StrategyPgStore{DB: db, TenantID: tenantID}
}

// 策略表上可直接等值过滤的列
var strategyColumns = map[string]string{
	"scenario":     "s.scenario",
	"source":       "s.source",
	"type":         "s.type",
	"create_user":  "s.create_user",
	"update_user":  "s.update_user",
	"invalid_type": "s.invalid_type",
	"app":          "s.app",
}

// 查询配置上的列，config 中的字段取 jsonb 文本值
var queryConfigColumns = map[string]string{
	"data_source_label":     "q.data_source_label",
	"data_type_label":       "q.data_type_label",
	"metric_id":             "q.metric_id",
	"result_table_id":       "q.config->>'result_table_id'",
	"metric_field":          "q.config->>'metric_field'",
	"index_set_id":          "q.config->>'index_set_id'",
	"custom_event_name":     "q.config->>'custom_event_name'",
	"alert_name":            "q.config->>'alert_name'",
	"agg_method":            "q.config->>'agg_method'",
	"bkmonitor_strategy_id": "q.config->>'bkmonitor_strategy_id'",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func contains(v string) string { return "%" + likeEscaper.Replace(v) + "%" }

// MatchStrategies 业务下满足全部条件的策略 id，升序
func (s *StrategyPgStore) MatchStrategies(ctx context.Context, bizID int64, conds []filter.Condition) ([]int64, error) {
	b := psql.Select("s.id").From("alarm_strategy_v2 s").Where(sq.Eq{"s.bk_biz_id": bizID}).OrderBy("s.id")
	for _, c := range conds {
		clause, err := conditionSQL(c)
		if err != nil {
			return nil, fmt.Errorf("build condition: %w", err)
		}
		if clause == nil {
			continue
		}
		b = b.Where(clause)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build strategy filter: %w", err)
	}
	return s.queryIDs(ctx, q, args...)
}

// conditionSQL 不支持的字段返回 nil，与旧接口一致直接忽略
func conditionSQL(c filter.Condition) (sq.Sqlizer, error) {
	switch c := c.(type) {
	case filter.EqIn:
		return eqSQL(c.Field, c.Values)
	case filter.NotIn:
		col, ok := strategyColumns[c.Field]
		if !ok {
			return nil, nil
		}
		return sq.NotEq{col: c.Values}, nil
	case filter.SubstringAny:
		return substringSQL(c.Field, c.Values)
	case filter.Startswith:
		col, ok := queryConfigColumns[c.Field]
		if !ok {
			return nil, nil
		}
		or := sq.Or{}
		for _, p := range c.Prefixes {
			or = append(or, sq.Like{col: likeEscaper.Replace(p) + "%"})
		}
		return strategyIDIn("alarm_query_config_v2 q", "q", or)
	}
	return nil, nil
}

func eqSQL(field string, values []string) (sq.Sqlizer, error) {
	if col, ok := strategyColumns[field]; ok {
		return sq.Eq{col: values}, nil
	}
	if col, ok := queryConfigColumns[field]; ok {
		return strategyIDIn("alarm_query_config_v2 q", "q", sq.Eq{col: values})
	}
	switch field {
	case "id":
		return sq.Expr("s.id = ANY(?)", pq.Array(parseInts(values))), nil
	case "priority":
		return sq.Eq{"s.priority": parseInts(values)}, nil
	case "is_enabled", "is_invalid":
		var bs []bool
		for _, v := range values {
			if b, err := strconv.ParseBool(v); err == nil {
				bs = append(bs, b)
			}
		}
		return sq.Eq{"s." + field: bs}, nil
	case "data_source":
		or := sq.Or{}
		for _, v := range values {
			ds, dt, ok := strings.Cut(v, "|")
			if !ok {
				ds, dt, _ = strings.Cut(v, ",")
			}
			or = append(or, sq.Eq{"q.data_source_label": ds, "q.data_type_label": dt})
		}
		return strategyIDIn("alarm_query_config_v2 q", "q", or)
	case "label":
		labels := make([]string, 0, len(values))
		for _, v := range values {
			labels = append(labels, "/"+model.LabelName(v)+"/")
		}
		return strategyIDIn("alarm_strategy_label l", "l", sq.Eq{"l.label_name": labels})
	case "algorithm_type":
		return strategyIDIn("alarm_algorithm_v2 a", "a", sq.Eq{"a.type": values})
	case "level":
		return strategyIDIn("alarm_detect_v2 d", "d", sq.Eq{"d.level": parseInts(values)})
	case "user_group_id":
		return strategyIDIn("alarm_strategy_action_config_relation r", "r",
			sq.Expr("r.user_groups && ?::bigint[]", pq.Array(parseInts(values))))
	case "action_id":
		return actionSQL(values, "0", func(ids []string) sq.Sqlizer {
			return sq.Eq{"r.config_id": parseInts(ids)}
		})
	case "uptime_check_task_id":
		sub, args, err := sq.Select("q.strategy_id").From("alarm_query_config_v2 q").
			Where(sq.Expr(`EXISTS (SELECT 1 FROM jsonb_array_elements(q.config->'agg_condition') c,
				jsonb_array_elements_text(c->'value') v WHERE c->>'key' = 'task_id' AND v = ANY(?))`, pq.Array(values))).
			ToSql()
		if err != nil {
			return nil, err
		}
		return sq.Expr("s.id IN ("+sub+")", args...), nil
	}
	log.Debug().Str("field", field).Msg("unsupported strategy filter field ignored")
	return nil, nil
}

func substringSQL(field string, values []string) (sq.Sqlizer, error) {
	switch field {
	case "name":
		or := sq.Or{}
		for _, v := range values {
			or = append(or, sq.ILike{"s.name": contains(v)})
		}
		return or, nil
	case "user_group_name":
		or := sq.Or{}
		for _, v := range values {
			or = append(or, sq.Like{"g.name": contains(v)})
		}
		inner, args, err := or.ToSql()
		if err != nil {
			return nil, err
		}
		return strategyIDIn("alarm_strategy_action_config_relation r", "r",
			sq.Expr("EXISTS (SELECT 1 FROM user_group g WHERE g.id = ANY(r.user_groups) AND "+inner+")", args...))
	case "action_name":
		return actionSQL(values, "", func(names []string) sq.Sqlizer {
			or := sq.Or{}
			for _, v := range names {
				or = append(or, sq.Like{"c.name": contains(v)})
			}
			inner, args, err := or.ToSql()
			if err != nil {
				return sq.Expr("1=0")
			}
			return sq.Expr("EXISTS (SELECT 1 FROM action_config c WHERE c.id = r.config_id AND c.plugin_id <> ? AND "+
				inner+")", append([]any{model.NoticePluginID}, args...)...)
		})
	}
	return nil, nil
}

// actionSQL 处理套餐条件。取值等于 none 时表示未配置处理套餐的策略
func actionSQL(values []string, none string, match func([]string) sq.Sqlizer) (sq.Sqlizer, error) {
	var without bool
	var rest []string
	for _, v := range values {
		if v == none {
			without = true
			continue
		}
		rest = append(rest, v)
	}
	or := sq.Or{}
	if len(rest) > 0 {
		in, err := strategyIDIn("alarm_strategy_action_config_relation r", "r",
			sq.And{sq.Eq{"r.relate_type": relateTypeAction}, match(rest)})
		if err != nil {
			return nil, err
		}
		or = append(or, in)
	}
	if without {
		or = append(or, sq.Expr("s.id NOT IN (SELECT r.strategy_id FROM alarm_strategy_action_config_relation r WHERE r.relate_type = ?)",
			relateTypeAction))
	}
	return or, nil
}

// strategyIDIn s.id IN (SELECT <alias>.strategy_id FROM <table> WHERE ...)
func strategyIDIn(table, alias string, where sq.Sqlizer) (sq.Sqlizer, error) {
	sub, args, err := sq.Select(alias + ".strategy_id").From(table).Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("s.id IN ("+sub+")", args...), nil
}

func parseInts(values []string) []int64 {
	out := make([]int64, 0, len(values))
	for _, v := range values {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func (s *StrategyPgStore) queryIDs(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query strategy ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan strategy id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *StrategyPgStore) queryStrings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v pgtype.Text
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid && v.String != "" {
			out = append(out, v.String)
		}
	}
	return out, rows.Err()
}

// MetricFieldsByAlias 按指标别名在指标缓存中查 metric_field
func (s *StrategyPgStore) MetricFieldsByAlias(ctx context.Context, bizID int64, aliases []string) ([]string, error) {
	const q = `
	SELECT DISTINCT metric_field FROM metric_list_cache
	WHERE bk_tenant_id = $1 AND bk_biz_id = ANY($2) AND metric_field_name = ANY($3)
	ORDER BY metric_field
	`
	out, err := s.queryStrings(ctx, q, s.TenantID, pq.Array([]int64{0, bizID}), pq.Array(aliases))
	if err != nil {
		return nil, fmt.Errorf("metric fields by alias: %w", err)
	}
	return out, nil
}

// EventGroupTables 自定义事件分组对应的结果表
func (s *StrategyPgStore) EventGroupTables(ctx context.Context, bizID int64, groupIDs []string) ([]string, error) {
	const q = `
	SELECT DISTINCT table_id FROM custom_event_group
	WHERE bk_biz_id = $1 AND bk_event_group_id = ANY($2)
	ORDER BY table_id
	`
	out, err := s.queryStrings(ctx, q, bizID, pq.Array(parseInts(groupIDs)))
	if err != nil {
		return nil, fmt.Errorf("event group tables: %w", err)
	}
	return out, nil
}

// TSGroupTables 自定义指标分组对应的结果表
func (s *StrategyPgStore) TSGroupTables(ctx context.Context, bizID int64, groupIDs []string) ([]string, error) {
	const q = `
	SELECT DISTINCT table_id FROM custom_ts_table
	WHERE bk_biz_id = $1 AND time_series_group_id = ANY($2)
	ORDER BY table_id
	`
	out, err := s.queryStrings(ctx, q, bizID, pq.Array(parseInts(groupIDs)))
	if err != nil {
		return nil, fmt.Errorf("time series group tables: %w", err)
	}
	return out, nil
}

// EnabledIDs 启用或停用的策略
func (s *StrategyPgStore) EnabledIDs(ctx context.Context, bizID int64, enabled bool) ([]int64, error) {
	const q = `SELECT id FROM alarm_strategy_v2 WHERE bk_biz_id = $1 AND is_enabled = $2 ORDER BY id`
	return s.queryIDs(ctx, q, bizID, enabled)
}

// InvalidIDs 已失效的策略
func (s *StrategyPgStore) InvalidIDs(ctx context.Context, bizID int64) ([]int64, error) {
	const q = `SELECT id FROM alarm_strategy_v2 WHERE bk_biz_id = $1 AND is_invalid ORDER BY id`
	return s.queryIDs(ctx, q, bizID)
}

// IPFilterTargets 候选策略的监控目标。HostScoped 表示策略场景与数据来源支持按主机匹配
func (s *StrategyPgStore) IPFilterTargets(ctx context.Context, bizID int64, ids []int64) ([]filter.ItemTarget, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
	SELECT i.strategy_id, i.target,
		(st.scenario = ANY($3) AND EXISTS (
			SELECT 1 FROM alarm_query_config_v2 q WHERE q.strategy_id = st.id AND q.data_source_label = $4
		)) AS host_scoped
	FROM alarm_item_v2 i
	JOIN alarm_strategy_v2 st ON st.id = i.strategy_id
	WHERE st.bk_biz_id = $1 AND i.strategy_id = ANY($2)
	ORDER BY i.strategy_id, i.id
	`
	rows, err := s.DB.QueryContext(ctx, q, bizID, pq.Array(ids), pq.Array(model.IPFilterScenarios), model.DataSourceMonitor)
	if err != nil {
		return nil, fmt.Errorf("query item targets: %w", err)
	}
	defer rows.Close()
	var out []filter.ItemTarget
	for rows.Next() {
		var t filter.ItemTarget
		var raw []byte
		if err := rows.Scan(&t.StrategyID, &raw, &t.HostScoped); err != nil {
			return nil, fmt.Errorf("scan item target: %w", err)
		}
		t.Target = json.RawMessage(raw)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ActiveShields 当前生效的策略屏蔽
func (s *StrategyPgStore) ActiveShields(ctx context.Context, bizID int64, now time.Time) ([]*model.Shield, error) {
	const q = `
	SELECT id, bk_biz_id, dimension_config, begin_time, end_time
	FROM alarm_shield
	WHERE bk_biz_id = $1 AND category = 'strategy' AND is_enabled AND NOT is_deleted
		AND begin_time <= $2 AND end_time >= $2
	ORDER BY id
	`
	rows, err := s.DB.QueryContext(ctx, q, bizID, now)
	if err != nil {
		return nil, fmt.Errorf("query shields: %w", err)
	}
	defer rows.Close()
	var out []*model.Shield
	for rows.Next() {
		var sh model.Shield
		var cfg []byte
		if err := rows.Scan(&sh.ID, &sh.BkBizID, &cfg, &sh.BeginTime, &sh.EndTime); err != nil {
			return nil, fmt.Errorf("scan shield: %w", err)
		}
		dc := gjson.ParseBytes(cfg)
		for _, v := range dc.Get("strategy_id").Array() {
			sh.StrategyIDs = append(sh.StrategyIDs, v.Int())
		}
		for _, v := range dc.Get("level").Array() {
			sh.Levels = append(sh.Levels, int(v.Int()))
		}
		out = append(out, &sh)
	}
	return out, rows.Err()
}

// countRows 两列结果 (key, count)，key 统一转为字符串
func (s *StrategyPgStore) countRows(ctx context.Context, q string, args ...any) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var key pgtype.Text
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key.String] += int(n)
	}
	return out, rows.Err()
}

// ScenarioCounts 按监控场景统计
func (s *StrategyPgStore) ScenarioCounts(ctx context.Context, bizID int64, ids []int64) (map[string]int, error) {
	const q = `
	SELECT scenario, COUNT(*) FROM alarm_strategy_v2
	WHERE bk_biz_id = $1 AND id = ANY($2)
	GROUP BY scenario
	`
	out, err := s.countRows(ctx, q, bizID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("count scenarios: %w", err)
	}
	return out, nil
}

// DataSourceCounts 按 ds|dt 统计去重的策略数
func (s *StrategyPgStore) DataSourceCounts(ctx context.Context, ids []int64) (map[string]int, error) {
	const q = `
	SELECT data_source_label || '|' || data_type_label, COUNT(DISTINCT strategy_id)
	FROM alarm_query_config_v2
	WHERE strategy_id = ANY($1)
	GROUP BY data_source_label, data_type_label
	`
	out, err := s.countRows(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("count data sources: %w", err)
	}
	return out, nil
}

// LabelCounts 按标签统计
func (s *StrategyPgStore) LabelCounts(ctx context.Context, ids []int64) (map[string]int, error) {
	const q = `
	SELECT label_name, COUNT(DISTINCT strategy_id) FROM alarm_strategy_label
	WHERE strategy_id = ANY($1)
	GROUP BY label_name
	`
	out, err := s.countRows(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("count labels: %w", err)
	}
	return out, nil
}

// VisibleLabels 业务与全局的全部标签
func (s *StrategyPgStore) VisibleLabels(ctx context.Context, bizID int64) ([]string, error) {
	const q = `
	SELECT DISTINCT label_name FROM alarm_strategy_label
	WHERE bk_biz_id = ANY($1)
	ORDER BY label_name
	`
	out, err := s.queryStrings(ctx, q, pq.Array([]int64{0, bizID}))
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return out, nil
}

// UserGroupCounts 每个通知组关联的去重策略数
func (s *StrategyPgStore) UserGroupCounts(ctx context.Context, ids []int64) (map[string]int, error) {
	const q = `
	SELECT g::text, COUNT(DISTINCT r.strategy_id)
	FROM alarm_strategy_action_config_relation r, unnest(r.user_groups) AS g
	WHERE r.strategy_id = ANY($1)
	GROUP BY g
	`
	out, err := s.countRows(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("count user groups: %w", err)
	}
	return out, nil
}

// BizUserGroups 业务下全部通知组
func (s *StrategyPgStore) BizUserGroups(ctx context.Context, bizID int64) ([]*model.UserGroup, error) {
	const q = `SELECT id, name, bk_biz_id, notice_receiver, followers FROM user_group WHERE bk_biz_id = $1 ORDER BY id`
	return s.queryUserGroups(ctx, q, bizID)
}

// UserGroupsByIDs 按 id 加载通知组
func (s *StrategyPgStore) UserGroupsByIDs(ctx context.Context, ids []int64) ([]*model.UserGroup, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `SELECT id, name, bk_biz_id, notice_receiver, followers FROM user_group WHERE id = ANY($1) ORDER BY id`
	return s.queryUserGroups(ctx, q, pq.Array(ids))
}

func (s *StrategyPgStore) queryUserGroups(ctx context.Context, q string, args ...any) ([]*model.UserGroup, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	defer rows.Close()
	var out []*model.UserGroup
	for rows.Next() {
		var g model.UserGroup
		var receivers, followers []byte
		if err := rows.Scan(&g.ID, &g.Name, &g.BkBizID, &receivers, &followers); err != nil {
			return nil, fmt.Errorf("scan user group: %w", err)
		}
		g.NoticeReceiver = receiverIDs(receivers)
		g.Followers = receiverIDs(followers)
		out = append(out, &g)
	}
	return out, rows.Err()
}

// receiverIDs 接收人既可能是字符串，也可能是 {type, id}
func receiverIDs(raw []byte) []string {
	var out []string
	for _, v := range gjson.ParseBytes(raw).Array() {
		if v.IsObject() {
			if id := v.Get("id").String(); id != "" {
				out = append(out, id)
			}
			continue
		}
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ActionRelations 策略与处理套餐的关联 (config_id, strategy_id)
func (s *StrategyPgStore) ActionRelations(ctx context.Context, ids []int64) ([][2]int64, error) {
	const q = `
	SELECT config_id, strategy_id FROM alarm_strategy_action_config_relation
	WHERE relate_type = $1 AND strategy_id = ANY($2)
	ORDER BY config_id, strategy_id
	`
	rows, err := s.DB.QueryContext(ctx, q, relateTypeAction, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query action relations: %w", err)
	}
	defer rows.Close()
	var out [][2]int64
	for rows.Next() {
		var r [2]int64
		if err := rows.Scan(&r[0], &r[1]); err != nil {
			return nil, fmt.Errorf("scan action relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActionConfigs 业务与全局处理套餐，不含通知套餐
func (s *StrategyPgStore) ActionConfigs(ctx context.Context, bizID int64) ([]*model.ActionConfig, error) {
	const q = `
	SELECT id, name, bk_biz_id, plugin_id FROM action_config
	WHERE bk_biz_id = ANY($1) AND plugin_id <> $2
	ORDER BY id
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array([]int64{0, bizID}), model.NoticePluginID)
	if err != nil {
		return nil, fmt.Errorf("query action configs: %w", err)
	}
	defer rows.Close()
	var out []*model.ActionConfig
	for rows.Next() {
		var c model.ActionConfig
		if err := rows.Scan(&c.ID, &c.Name, &c.BkBizID, &c.PluginID); err != nil {
			return nil, fmt.Errorf("scan action config: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// LevelCounts 按检测级别统计
func (s *StrategyPgStore) LevelCounts(ctx context.Context, ids []int64) (map[string]int, error) {
	const q = `
	SELECT level::text, COUNT(DISTINCT strategy_id) FROM alarm_detect_v2
	WHERE strategy_id = ANY($1)
	GROUP BY level
	`
	out, err := s.countRows(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("count levels: %w", err)
	}
	return out, nil
}

// InvalidTypeCounts 失效策略按失效类型统计
func (s *StrategyPgStore) InvalidTypeCounts(ctx context.Context, ids []int64) (map[string]int, error) {
	const q = `
	SELECT invalid_type, COUNT(DISTINCT id) FROM alarm_strategy_v2
	WHERE is_invalid AND id = ANY($1)
	GROUP BY invalid_type
	`
	out, err := s.countRows(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("count invalid types: %w", err)
	}
	return out, nil
}

// AlgorithmTypeCounts 按算法类型统计
func (s *StrategyPgStore) AlgorithmTypeCounts(ctx context.Context, ids []int64) (map[string]int, error) {
	const q = `
	SELECT type, COUNT(DISTINCT strategy_id) FROM alarm_algorithm_v2
	WHERE strategy_id = ANY($1) AND type <> ''
	GROUP BY type
	`
	out, err := s.countRows(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("count algorithm types: %w", err)
	}
	return out, nil
}

// PageIDs 按 update_time、id 倒序分页，limit <= 0 表示不分页
func (s *StrategyPgStore) PageIDs(ctx context.Context, bizID int64, ids []int64, offset, limit int) ([]int64, int, error) {
	where := sq.And{sq.Eq{"bk_biz_id": bizID}, sq.Expr("id = ANY(?)", pq.Array(ids))}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("alarm_strategy_v2").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build strategy count: %w", err)
	}
	var total int64
	if err := s.DB.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count strategies: %w", err)
	}

	b := psql.Select("id").From("alarm_strategy_v2").Where(where).OrderBy("update_time DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit)).Offset(uint64(offset))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build strategy page: %w", err)
	}
	page, err := s.queryIDs(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return page, int(total), nil
}

// LoadStrategies 加载完整策略，结果顺序与 ids 一致，不存在的 id 跳过
func (s *StrategyPgStore) LoadStrategies(ctx context.Context, ids []int64) ([]*model.Strategy, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID, err := s.loadStrategyRows(ctx, ids)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := s.loadQueryConfigs(ctx, ids, items); err != nil {
		return nil, err
	}
	if err := s.loadAlgorithms(ctx, ids, items); err != nil {
		return nil, err
	}
	for _, it := range items {
		if st, ok := byID[it.strategyID]; ok {
			st.Items = append(st.Items, *it.item)
		}
	}
	if err := s.loadDetects(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := s.loadLabels(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := s.loadRelations(ctx, ids, byID); err != nil {
		return nil, err
	}

	out := make([]*model.Strategy, 0, len(ids))
	for _, id := range ids {
		if st, ok := byID[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *StrategyPgStore) loadStrategyRows(ctx context.Context, ids []int64) (map[int64]*model.Strategy, error) {
	const q = `
	SELECT id, name, bk_biz_id, source, scenario, type, is_enabled, is_invalid, invalid_type, app, priority,
		create_user, create_time, update_user, update_time
	FROM alarm_strategy_v2 WHERE id = ANY($1)
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]*model.Strategy, len(ids))
	for rows.Next() {
		var (
			st                            model.Strategy
			source, typ, invalidType, app pgtype.Text
			priority                      pgtype.Int8
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.BkBizID, &source, &st.Scenario, &typ, &st.IsEnabled, &st.IsInvalid,
			&invalidType, &app, &priority, &st.CreateUser, &st.CreateTime, &st.UpdateUser, &st.UpdateTime); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		st.Source, st.Type, st.InvalidType, st.App = source.String, typ.String, invalidType.String, app.String
		if priority.Valid {
			p := int(priority.Int64)
			st.Priority = &p
		}
		st.Labels = []string{}
		st.Actions = []model.ActionRelation{}
		out[st.ID] = &st
	}
	return out, rows.Err()
}

type loadedItem struct {
	strategyID int64
	item       *model.Item
}

func (s *StrategyPgStore) loadItems(ctx context.Context, ids []int64) ([]*loadedItem, error) {
	const q = `
	SELECT id, strategy_id, name, target, no_data_config FROM alarm_item_v2
	WHERE strategy_id = ANY($1) ORDER BY id
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	var out []*loadedItem
	for rows.Next() {
		it := &loadedItem{item: &model.Item{QueryConfigs: []model.QueryConfig{}, Algorithms: []model.Algorithm{}}}
		var target, noData []byte
		if err := rows.Scan(&it.item.ID, &it.strategyID, &it.item.Name, &target, &noData); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.item.Target = rawOrNull(target)
		it.item.NoDataConfig = rawOrNull(noData)
		out = append(out, it)
	}
	return out, rows.Err()
}

func itemIndex(items []*loadedItem) map[int64]*model.Item {
	idx := make(map[int64]*model.Item, len(items))
	for _, it := range items {
		idx[it.item.ID] = it.item
	}
	return idx
}

func (s *StrategyPgStore) loadQueryConfigs(ctx context.Context, ids []int64, items []*loadedItem) error {
	const q = `
	SELECT id, item_id, alias, data_source_label, data_type_label, metric_id, config
	FROM alarm_query_config_v2 WHERE strategy_id = ANY($1) ORDER BY id
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query query configs: %w", err)
	}
	defer rows.Close()
	idx := itemIndex(items)
	for rows.Next() {
		var (
			qc     model.QueryConfig
			itemID int64
			alias  pgtype.Text
			cfg    []byte
		)
		if err := rows.Scan(&qc.ID, &itemID, &alias, &qc.DataSourceLabel, &qc.DataTypeLabel, &qc.MetricID, &cfg); err != nil {
			return fmt.Errorf("scan query config: %w", err)
		}
		id, ds, dt, metricID := qc.ID, qc.DataSourceLabel, qc.DataTypeLabel, qc.MetricID
		if err := unmarshalJSONB(cfg, &qc); err != nil {
			return fmt.Errorf("decode query config %d: %w", id, err)
		}
		qc.ID, qc.Alias, qc.DataSourceLabel, qc.DataTypeLabel, qc.MetricID = id, alias.String, ds, dt, metricID
		if qc.MetricID == "" {
			qc.MetricID = model.MetricID(&qc)
		}
		if it, ok := idx[itemID]; ok {
			it.QueryConfigs = append(it.QueryConfigs, qc)
		}
	}
	return rows.Err()
}

func (s *StrategyPgStore) loadAlgorithms(ctx context.Context, ids []int64, items []*loadedItem) error {
	const q = `
	SELECT id, item_id, type, level, config, unit_prefix
	FROM alarm_algorithm_v2 WHERE strategy_id = ANY($1) ORDER BY id
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query algorithms: %w", err)
	}
	defer rows.Close()
	idx := itemIndex(items)
	for rows.Next() {
		var (
			a          model.Algorithm
			itemID     int64
			cfg        []byte
			unitPrefix pgtype.Text
		)
		if err := rows.Scan(&a.ID, &itemID, &a.Type, &a.Level, &cfg, &unitPrefix); err != nil {
			return fmt.Errorf("scan algorithm: %w", err)
		}
		a.Config = rawOrNull(cfg)
		a.UnitPrefix = unitPrefix.String
		if it, ok := idx[itemID]; ok {
			it.Algorithms = append(it.Algorithms, a)
		}
	}
	return rows.Err()
}

func (s *StrategyPgStore) loadDetects(ctx context.Context, ids []int64, byID map[int64]*model.Strategy) error {
	const q = `
	SELECT strategy_id, level, trigger_config, recovery_config, connector
	FROM alarm_detect_v2 WHERE strategy_id = ANY($1) ORDER BY strategy_id, level
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query detects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d                 model.Detect
			strategyID        int64
			trigger, recovery []byte
			connector         pgtype.Text
		)
		if err := rows.Scan(&strategyID, &d.Level, &trigger, &recovery, &connector); err != nil {
			return fmt.Errorf("scan detect: %w", err)
		}
		d.TriggerConfig = rawOrNull(trigger)
		d.RecoveryConfig = rawOrNull(recovery)
		d.Connector = connector.String
		if st, ok := byID[strategyID]; ok {
			st.Detects = append(st.Detects, d)
		}
	}
	return rows.Err()
}

func (s *StrategyPgStore) loadLabels(ctx context.Context, ids []int64, byID map[int64]*model.Strategy) error {
	const q = `
	SELECT strategy_id, label_name FROM alarm_strategy_label
	WHERE strategy_id = ANY($1) ORDER BY strategy_id, label_name
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var strategyID int64
		var label string
		if err := rows.Scan(&strategyID, &label); err != nil {
			return fmt.Errorf("scan label: %w", err)
		}
		if st, ok := byID[strategyID]; ok {
			st.Labels = append(st.Labels, model.LabelName(label))
		}
	}
	return rows.Err()
}

// loadRelations NOTICE 关联填充 notice，ACTION 关联填充 actions
func (s *StrategyPgStore) loadRelations(ctx context.Context, ids []int64, byID map[int64]*model.Strategy) error {
	const q = `
	SELECT strategy_id, config_id, relate_type, signal, user_groups, options
	FROM alarm_strategy_action_config_relation WHERE strategy_id = ANY($1) ORDER BY id
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query action relations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			strategyID, configID int64
			relateType           string
			signal, options      []byte
			userGroups           pq.Int64Array
		)
		if err := rows.Scan(&strategyID, &configID, &relateType, &signal, &userGroups, &options); err != nil {
			return fmt.Errorf("scan action relation: %w", err)
		}
		st, ok := byID[strategyID]
		if !ok {
			continue
		}
		var signals []string
		if err := unmarshalJSONB(signal, &signals); err != nil {
			return fmt.Errorf("decode relation signal: %w", err)
		}
		groups := []int64(userGroups)
		if groups == nil {
			groups = []int64{}
		}
		if relateType != relateTypeAction {
			n := &model.Notice{ConfigID: configID, UserGroups: groups, Signal: signals}
			if err := unmarshalJSONB(options, &n.Options); err != nil {
				return fmt.Errorf("decode notice options: %w", err)
			}
			st.Notice = n
			continue
		}
		st.Actions = append(st.Actions, model.ActionRelation{ConfigID: configID, UserGroups: groups, Signal: signals})
	}
	return rows.Err()
}

// MetricNames 按查询键批量查询指标缓存
func (s *StrategyPgStore) MetricNames(ctx context.Context, bizID int64, tuples []model.MetricTuple) ([]*model.MetricCacheEntry, error) {
	if len(tuples) == 0 {
		return nil, nil
	}
	or := sq.Or{}
	for _, t := range tuples {
		table := "result_table_id"
		if t.ByRelatedID() {
			table = "related_id"
		}
		or = append(or, sq.Eq{
			"data_source_label": t.DataSourceLabel,
			"data_type_label":   t.DataTypeLabel,
			table:               t.Table,
			"metric_field":      t.MetricField,
		})
	}
	q, args, err := psql.Select("data_source_label", "data_type_label", "result_table_id", "related_id",
		"metric_field", "metric_field_name").
		From("metric_list_cache").
		Where(sq.Eq{"bk_tenant_id": s.TenantID}).
		Where(sq.Expr("bk_biz_id = ANY(?)", pq.Array([]int64{0, bizID}))).
		Where(or).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build metric query: %w", err)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metric cache: %w", err)
	}
	defer rows.Close()
	var out []*model.MetricCacheEntry
	for rows.Next() {
		var e model.MetricCacheEntry
		var rt, related pgtype.Text
		if err := rows.Scan(&e.DataSourceLabel, &e.DataTypeLabel, &rt, &related, &e.MetricField, &e.MetricFieldName); err != nil {
			return nil, fmt.Errorf("scan metric cache: %w", err)
		}
		e.ResultTableID, e.RelatedID = rt.String, related.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func rawOrNull(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(append([]byte(nil), raw...))
}
