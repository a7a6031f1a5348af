package repository

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"deploy-orchestrator/internal/dto"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	return db, mock
}

func TestListByTargetWithSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// 时间过滤同时出现在计数和取页两条语句里
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT count(*) FROM `deployment_records` WHERE target_id = ? AND started_at >= ?")).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))
	mock.ExpectQuery(
		"SELECT \\* FROM `deployment_records` WHERE target_id = \\? AND started_at >= \\? ORDER BY id DESC").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "target_id", "attempted_version", "outcome"}).
			AddRow(3, "req-1", 7, "v2", "success"))

	records, total, err := repo.ListByTarget(7, dto.RecordListParam{}, WithSince(since))
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	require.Equal(t, "v2", records[0].AttemptedVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByTargetOutcomeFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db)

	param := dto.RecordListParam{Outcome: "failed_health_check"}

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT count(*) FROM `deployment_records` WHERE target_id = ? AND outcome = ?")).
		WithArgs(int64(3), "failed_health_check").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))
	mock.ExpectQuery(
		"SELECT \\* FROM `deployment_records` WHERE target_id = \\? AND outcome = \\? ORDER BY id DESC").
		WithArgs(int64(3), "failed_health_check").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	records, total, err := repo.ListByTarget(3, param)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}
