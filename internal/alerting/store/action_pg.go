package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/database"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq"
)

const actionColumns = `id, create_time, end_time, status, signal, alerts, strategy_id, bk_biz_id,
	action_config, action_config_id, action_plugin, inputs, dimension_hash, dimensions`

// ActionPgStore 处理动作与收敛记录，只读
type ActionPgStore struct {
	DB *database.Database
}

func NewActionPgStore(db *database.Database) *ActionPgStore { return &ActionPgStore{DB: db} }

func (s *ActionPgStore) GetAction(ctx context.Context, id int64) (*model.ActionInstance, error) {
	q := `SELECT ` + actionColumns + ` FROM action_instance WHERE id = $1`
	rows, err := s.DB.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get action %d: %w", id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get action %d: %w", id, err)
		}
		return nil, fmt.Errorf("get action %d: %w", id, model.ErrNotFound)
	}
	a, err := scanAction(rows)
	if err != nil {
		return nil, fmt.Errorf("scan action %d: %w", id, err)
	}
	return a, nil
}

// ListActions 按 id 批量加载，结果顺序与数据库一致
func (s *ActionPgStore) ListActions(ctx context.Context, ids []int64) ([]*model.ActionInstance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + actionColumns + ` FROM action_instance WHERE id = ANY($1) ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()
	var res []*model.ActionInstance
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func scanAction(rows *sql.Rows) (*model.ActionInstance, error) {
	var (
		a                                         model.ActionInstance
		endTime                                   pgtype.Timestamptz
		strategyID                                pgtype.Int8
		dimensionHash                             pgtype.Text
		alerts, cfg, plugin, inputs, dimensionRaw []byte
	)
	if err := rows.Scan(&a.ID, &a.CreateTime, &endTime, &a.Status, &a.Signal, &alerts, &strategyID, &a.BkBizID,
		&cfg, &a.ActionConfigID, &plugin, &inputs, &dimensionHash, &dimensionRaw); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		a.EndTime = &t
	}
	a.StrategyID = strategyID.Int64
	a.DimensionHash = dimensionHash.String
	if err := unmarshalJSONB(alerts, &a.Alerts); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	if err := unmarshalJSONB(cfg, &a.ActionConfig); err != nil {
		return nil, fmt.Errorf("decode action_config: %w", err)
	}
	if err := unmarshalJSONB(plugin, &a.ActionPlugin); err != nil {
		return nil, fmt.Errorf("decode action_plugin: %w", err)
	}
	if len(inputs) > 0 {
		a.Inputs = append(model.Inputs(nil), inputs...)
	}
	if err := unmarshalJSONB(dimensionRaw, &a.Dimensions); err != nil {
		return nil, fmt.Errorf("decode dimensions: %w", err)
	}
	return &a, nil
}

func (s *ActionPgStore) GetConverge(ctx context.Context, id int64) (*model.ConvergeInstance, error) {
	const q = `SELECT id, converge_type, description, bk_biz_id, create_time FROM converge_instance WHERE id = $1`
	var c model.ConvergeInstance
	var desc pgtype.Text
	err := s.DB.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.ConvergeType, &desc, &c.BkBizID, &c.CreateTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get converge %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get converge %d: %w", id, err)
	}
	c.Description = desc.String
	return &c, nil
}

// ConvergeRelations 收敛实例下的全部关系
func (s *ActionPgStore) ConvergeRelations(ctx context.Context, convergeIDs []int64) ([]*model.ConvergeRelation, error) {
	if len(convergeIDs) == 0 {
		return nil, nil
	}
	const q = `
	SELECT converge_id, related_id, related_type, converge_status, alerts
	FROM converge_relation
	WHERE converge_id = ANY($1)
	ORDER BY converge_id, related_id
	`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(convergeIDs))
	if err != nil {
		return nil, fmt.Errorf("list converge relations: %w", err)
	}
	defer rows.Close()
	var res []*model.ConvergeRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan converge relation: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// RelationOf 被收敛对象所属的关系
func (s *ActionPgStore) RelationOf(ctx context.Context, relatedID int64, relatedType model.ConvergeType) (*model.ConvergeRelation, error) {
	const q = `
	SELECT converge_id, related_id, related_type, converge_status, alerts
	FROM converge_relation
	WHERE related_id = $1 AND related_type = $2
	ORDER BY converge_id DESC
	LIMIT 1
	`
	rows, err := s.DB.QueryContext(ctx, q, relatedID, string(relatedType))
	if err != nil {
		return nil, fmt.Errorf("get relation of %s %d: %w", relatedType, relatedID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("get relation of %s %d: %w", relatedType, relatedID, model.ErrNotFound)
	}
	r, err := scanRelation(rows)
	if err != nil {
		return nil, fmt.Errorf("scan converge relation: %w", err)
	}
	return r, nil
}

func scanRelation(rows *sql.Rows) (*model.ConvergeRelation, error) {
	var r model.ConvergeRelation
	var status pgtype.Text
	var alerts []byte
	if err := rows.Scan(&r.ConvergeID, &r.RelatedID, &r.RelatedType, &status, &alerts); err != nil {
		return nil, err
	}
	r.ConvergeStatus = status.String
	if err := unmarshalJSONB(alerts, &r.Alerts); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	return &r, nil
}

func unmarshalJSONB(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
