package store

import (
	"context"
	"fmt"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/database"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tidwall/gjson"
)

// ExperiencePgStore 告警处理经验
type ExperiencePgStore struct {
	DB *database.Database
}

func NewExperiencePgStore(db *database.Database) *ExperiencePgStore {
	return &ExperiencePgStore{DB: db}
}

// ListExperiences 业务下的全部经验，最近更新的在前
func (s *ExperiencePgStore) ListExperiences(ctx context.Context, bizID int64) ([]*model.Experience, error) {
	const q = `
	SELECT id, bk_biz_id, type, alert_name, metric, conditions, description, update_time
	FROM alert_experience WHERE bk_biz_id = $1 ORDER BY update_time DESC, id DESC
	`
	rows, err := s.DB.QueryContext(ctx, q, bizID)
	if err != nil {
		return nil, fmt.Errorf("query experiences: %w", err)
	}
	defer rows.Close()
	var out []*model.Experience
	for rows.Next() {
		var (
			e                  model.Experience
			metric, conditions []byte
			alertName, desc    pgtype.Text
			updated            pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &e.BkBizID, &e.Type, &alertName, &metric, &conditions, &desc, &updated); err != nil {
			return nil, fmt.Errorf("scan experience: %w", err)
		}
		// metric 既可能是单个字符串，也可能是列表
		m := gjson.ParseBytes(metric)
		if m.IsArray() {
			for _, v := range m.Array() {
				e.Metrics = append(e.Metrics, v.String())
			}
		} else if m.String() != "" {
			e.Metrics = []string{m.String()}
		}
		if err := unmarshalJSONB(conditions, &e.Conditions); err != nil {
			return nil, fmt.Errorf("decode experience conditions %d: %w", e.ID, err)
		}
		e.AlertName = alertName.String
		e.Description = desc.String
		e.UpdateTime = updated.Time
		out = append(out, &e)
	}
	return out, rows.Err()
}
