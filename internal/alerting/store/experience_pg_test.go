package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListExperiences(t *testing.T) {
	db, mock := newMockDB(t)
	updated := time.Unix(1700000000, 0).UTC()
	rows := sqlmock.NewRows([]string{"id", "bk_biz_id", "type", "alert_name", "metric", "conditions", "description", "update_time"}).
		AddRow(int64(2), int64(2), "dimension", "", []byte(`["bk_monitor.system.cpu_summary.usage"]`),
			[]byte(`[{"key":"ip","method":"eq","value":["10.0.0.1"]},{"key":"device","method":"include","value":["sda"],"condition":"or"}]`),
			"重启进程", updated).
		AddRow(int64(1), int64(2), "metric", "cpu告警", []byte(`"bk_monitor.system.cpu_summary.usage"`), nil, nil, updated.Add(-time.Hour))
	mock.ExpectQuery(`FROM alert_experience WHERE bk_biz_id = \$1 ORDER BY update_time DESC`).
		WithArgs(int64(2)).WillReturnRows(rows)

	exps, err := NewExperiencePgStore(db).ListExperiences(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, exps, 2)

	assert.Equal(t, model.ExperienceDimension, exps[0].Type)
	assert.Equal(t, []string{"bk_monitor.system.cpu_summary.usage"}, exps[0].Metrics)
	require.Len(t, exps[0].Conditions, 2)
	assert.Equal(t, "or", exps[0].Conditions[1].Condition)
	assert.Equal(t, "重启进程", exps[0].Description)
	assert.True(t, exps[0].UpdateTime.Equal(updated))

	assert.Equal(t, "cpu告警", exps[1].AlertName)
	assert.Equal(t, []string{"bk_monitor.system.cpu_summary.usage"}, exps[1].Metrics)
	assert.Empty(t, exps[1].Conditions)
	assert.Empty(t, exps[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}
