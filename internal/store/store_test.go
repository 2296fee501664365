package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL matching.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	s, err := New(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	return s, mock
}

func testRecord() Record {
	return Record{
		ID:        uuid.NewString(),
		SessionID: "sess-1",
		Query:     "what is quiescence",
		Content:   "the absence of change",
		Model:     "research",
		TimedOut:  false,
		CreatedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
}

func TestNew_PingFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	_, err = New(context.Background(), mock, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(flexibleSQLMatcher("CREATE TABLE IF NOT EXISTS responses")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResponse(t *testing.T) {
	s, mock := newMockStore(t)
	rec := testRecord()

	mock.ExpectExec(flexibleSQLMatcher("INSERT INTO responses")).
		WithArgs(rec.ID, rec.SessionID, rec.Query, rec.Content, rec.Model, rec.TimedOut, rec.CreatedAt.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveResponse(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResponse_InsertFailure(t *testing.T) {
	s, mock := newMockStore(t)
	rec := testRecord()

	mock.ExpectExec(flexibleSQLMatcher("INSERT INTO responses")).
		WithArgs(rec.ID, rec.SessionID, rec.Query, rec.Content, rec.Model, rec.TimedOut, rec.CreatedAt.UTC()).
		WillReturnError(errors.New("relation does not exist"))

	err := s.SaveResponse(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert response")
}

func TestRecent(t *testing.T) {
	s, mock := newMockStore(t)
	rec := testRecord()

	rows := pgxmock.NewRows([]string{"id", "session_id", "query", "content", "model", "timed_out", "created_at"}).
		AddRow(rec.ID, rec.SessionID, rec.Query, rec.Content, rec.Model, rec.TimedOut, rec.CreatedAt)

	mock.ExpectQuery(flexibleSQLMatcher("SELECT id, session_id, query, content, model, timed_out, created_at")).
		WithArgs(5).
		WillReturnRows(rows)

	records, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec, records[0])
	require.NoError(t, mock.ExpectationsWereMet())
}
