package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/uniguide/corrections-api/internal/models"
)

func newStatsRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStatsRepositoryStatusCounts(t *testing.T) {
	db, mock, cleanup := newStatsRepoMock(t)
	defer cleanup()

	repo := NewStatsRepository(db)
	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("APPLIED", 12).
		AddRow("PENDING", 4).
		AddRow("REJECTED", 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM corrections")).
		WillReturnRows(rows)

	counts, err := repo.StatusCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 3)
	require.Equal(t, models.CorrectionStatusApplied, counts[0].Status)
	require.Equal(t, 12, counts[0].Count)
}

func TestStatsRepositoryRejectionReasonsClampsLimit(t *testing.T) {
	db, mock, cleanup := newStatsRepoMock(t)
	defer cleanup()

	repo := NewStatsRepository(db)
	rows := sqlmock.NewRows([]string{"reason", "count"}).
		AddRow("no supporting source", 7).
		AddRow("value already correct", 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT admin_notes AS reason")).
		WithArgs(10).
		WillReturnRows(rows)

	reasons, err := repo.RejectionReasons(context.Background(), -5)
	require.NoError(t, err)
	require.Len(t, reasons, 2)
	require.Equal(t, "no supporting source", reasons[0].Reason)
	require.Equal(t, 7, reasons[0].Count)
}

func TestStatsRepositoryTrustDistribution(t *testing.T) {
	db, mock, cleanup := newStatsRepoMock(t)
	defer cleanup()

	repo := NewStatsRepository(db)
	rows := sqlmock.NewRows([]string{"trust_level", "count"}).
		AddRow(1, 5).
		AddRow(3, 9)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT submitter_trust_level AS trust_level")).
		WillReturnRows(rows)

	counts, err := repo.TrustDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, 3, counts[1].TrustLevel)
	require.Equal(t, 9, counts[1].Count)
}

func TestStatsRepositoryEntityTypeCounts(t *testing.T) {
	db, mock, cleanup := newStatsRepoMock(t)
	defer cleanup()

	repo := NewStatsRepository(db)
	rows := sqlmock.NewRows([]string{"entity_type", "count"}).
		AddRow("institution", 20).
		AddRow("career", 6)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT entity_type, COUNT(*) AS count FROM corrections")).
		WillReturnRows(rows)

	counts, err := repo.EntityTypeCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, "institution", counts[0].EntityType)
	require.Equal(t, 20, counts[0].Count)
}
