package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/database"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*database.Database, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.Wrap(db), mock
}

var actionCols = []string{"id", "create_time", "end_time", "status", "signal", "alerts", "strategy_id", "bk_biz_id",
	"action_config", "action_config_id", "action_plugin", "inputs", "dimension_hash", "dimensions"}

func TestGetAction(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Unix(1700000000, 0).UTC()
	rows := sqlmock.NewRows(actionCols).AddRow(
		int64(7), created, nil, "skipped", "ABNORMAL", []byte(`["A-1","A-2"]`), int64(42), int64(2),
		[]byte(`{"id":9,"name":"notice","execute_config":{"template_detail":{"template":[{"signal":"abnormal","title_tmpl":"t","message_tmpl":"m"}]}}}`),
		int64(9), []byte(`{"plugin_type":"notice"}`), []byte(`{"notice_way":"mail","notice_receiver":["alice"]}`),
		"abc", []byte(`[{"key":"ip","value":"10.0.0.1"}]`),
	)
	mock.ExpectQuery(`FROM action_instance WHERE id = \$1`).WithArgs(int64(7)).WillReturnRows(rows)

	a, err := NewActionPgStore(db).GetAction(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ID)
	assert.Equal(t, model.ActionSkipped, a.Status)
	assert.Equal(t, []string{"A-1", "A-2"}, a.Alerts)
	assert.Nil(t, a.EndTime)
	assert.Equal(t, model.PluginNotice, a.ActionPlugin.PluginType)
	assert.Equal(t, "mail", a.Inputs.NoticeWay())
	assert.Equal(t, "abc", a.DimensionHash)
	assert.Equal(t, "1700000000"+"7", a.EsActionID())
	require.Len(t, a.ActionConfig.ExecuteConfig.TemplateDetail.Template, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActionNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM action_instance WHERE id = \$1`).WithArgs(int64(8)).WillReturnRows(sqlmock.NewRows(actionCols))

	_, err := NewActionPgStore(db).GetAction(context.Background(), 8)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestListActions(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Unix(1700000000, 0).UTC()
	end := created.Add(time.Minute)
	rows := sqlmock.NewRows(actionCols).
		AddRow(int64(1), created, end, "skipped", "ABNORMAL", []byte(`["A-1"]`), nil, int64(2), []byte(`{}`), int64(0), []byte(`{}`), nil, nil, nil).
		AddRow(int64(2), created, nil, "running", "ABNORMAL", []byte(`["A-2"]`), int64(5), int64(2), []byte(`{}`), int64(0), []byte(`{}`), nil, nil, nil)
	mock.ExpectQuery(`FROM action_instance WHERE id = ANY\(\$1\)`).WillReturnRows(rows)

	res, err := NewActionPgStore(db).ListActions(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.NotNil(t, res[0].EndTime)
	assert.Equal(t, end, *res[0].EndTime)
	assert.Equal(t, int64(0), res[0].StrategyID)
	assert.Equal(t, int64(5), res[1].StrategyID)

	empty, err := NewActionPgStore(db).ListActions(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestConvergeQueries(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`FROM converge_instance WHERE id = \$1`).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "converge_type", "description", "bk_biz_id", "create_time"}).
			AddRow(int64(3), "converge", "二级收敛", int64(2), created))

	relCols := []string{"converge_id", "related_id", "related_type", "converge_status", "alerts"}
	mock.ExpectQuery(`FROM converge_relation\s+WHERE converge_id = ANY`).
		WillReturnRows(sqlmock.NewRows(relCols).
			AddRow(int64(3), int64(11), "action", "skipped", []byte(`["A-1"]`)).
			AddRow(int64(3), int64(4), "converge", nil, nil))
	mock.ExpectQuery(`FROM converge_relation\s+WHERE related_id = \$1 AND related_type = \$2`).
		WithArgs(int64(11), "action").
		WillReturnRows(sqlmock.NewRows(relCols).AddRow(int64(3), int64(11), "action", "skipped", []byte(`["A-1"]`)))

	s := NewActionPgStore(db)
	c, err := s.GetConverge(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, model.ConvergeConverge, c.ConvergeType)
	assert.Equal(t, "二级收敛", c.Description)

	rels, err := s.ConvergeRelations(context.Background(), []int64{3})
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, model.ConvergeAction, rels[0].RelatedType)
	assert.Equal(t, []string{"A-1"}, rels[0].Alerts)
	assert.Empty(t, rels[1].Alerts)

	rel, err := s.RelationOf(context.Background(), 11, model.ConvergeAction)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rel.ConvergeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConvergeNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM converge_instance`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := NewActionPgStore(db).GetConverge(context.Background(), 99)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
