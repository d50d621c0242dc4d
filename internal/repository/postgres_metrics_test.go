package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/domain"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresMetricsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewPostgresMetricsRepository(db, logger)

	return db, mock, repo
}

func sampleAt(ts time.Time, metricType string, value float64) domain.MetricSample {
	return domain.MetricSample{Timestamp: ts, MetricType: metricType, Value: value, Unit: "count"}
}

func TestUpsertBatch_CommitsAll(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	samples := []domain.MetricSample{
		sampleAt(ts, "step_count", 1000),
		sampleAt(ts.Add(time.Hour), "step_count", 200),
	}
	samples[0].RawPayload = []byte(`{"qty":1000}`)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO health_metrics`)
	prep.ExpectExec().
		WithArgs(ts, "step_count", 1000.0, "count", domain.DefaultSource, []byte(`{"qty":1000}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(ts.Add(time.Hour), "step_count", 200.0, "count", domain.DefaultSource, nil).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	n, err := repo.UpsertBatch(context.Background(), samples)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_RollsBackOnFailure(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	samples := []domain.MetricSample{
		sampleAt(ts, "step_count", 1000),
		sampleAt(ts, "heart_rate", 62),
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO health_metrics`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	n, err := repo.UpsertBatch(context.Background(), samples)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "heart_rate")
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_RejectsInvalidBeforeTransaction(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	cases := map[string]domain.MetricSample{
		"nan":          sampleAt(ts, "heart_rate", math.NaN()),
		"inf":          sampleAt(ts, "heart_rate", math.Inf(1)),
		"empty type":   sampleAt(ts, "", 1),
		"no timestamp": sampleAt(time.Time{}, "heart_rate", 60),
	}

	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			n, err := repo.UpsertBatch(context.Background(), []domain.MetricSample{sampleAt(ts, "step_count", 1), bad})
			assert.ErrorIs(t, err, ErrInvalidSample)
			assert.Equal(t, 0, n)
		})
	}

	// no Begin was expected, so any DB call would have failed here
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_Empty(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	n, err := repo.UpsertBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_KeepsExplicitSource(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	ts := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	s := sampleAt(ts, "heart_rate", 61)
	s.Unit = "count/min"
	s.Source = "csv_import"

	mock.ExpectExec(`ON CONFLICT \(timestamp, metric_type\)`).
		WithArgs(ts, "heart_rate", 61.0, "count/min", "csv_import", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Upsert(context.Background(), &s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRange_ScansRows(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 0, 7)

	rows := sqlmock.NewRows([]string{"id", "timestamp", "metric_type", "value", "unit", "source", "raw_payload"}).
		AddRow(1, since.Add(time.Hour), "step_count", 1000.0, "count", "apple_health", []byte(`{"qty":1000}`)).
		AddRow(2, since.Add(2*time.Hour), "heart_rate", 64.5, "", "", nil)

	mock.ExpectQuery(`FROM health_metrics`).
		WithArgs(sqlmock.AnyArg(), since, until).
		WillReturnRows(rows)

	samples, err := repo.QueryRange(context.Background(), []string{"step_count", "heart_rate"}, since, until)

	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, int64(1), samples[0].ID)
	assert.Equal(t, "step_count", samples[0].MetricType)
	assert.JSONEq(t, `{"qty":1000}`, string(samples[0].RawPayload))
	assert.Equal(t, 64.5, samples[1].Value)
	assert.Empty(t, samples[1].Unit)
	assert.Nil(t, samples[1].RawPayload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRange_NoTypes(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	samples, err := repo.QueryRange(context.Background(), nil, time.Now().Add(-time.Hour), time.Now())

	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRange_QueryError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM health_metrics`).WillReturnError(sql.ErrConnDone)

	_, err := repo.QueryRange(context.Background(), []string{"step_count"}, time.Now().Add(-time.Hour), time.Now())

	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
