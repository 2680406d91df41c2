package shared

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)

	start, end := p.Bounds()
	assert.Equal(t, 0, start)
	assert.Equal(t, 20, end)

	start, end = NewPagination(3, 20, 45).Bounds()
	assert.Equal(t, 40, start)
	assert.Equal(t, 45, end)

	start, end = NewPagination(9, 20, 45).Bounds()
	assert.Equal(t, 45, start)
	assert.Equal(t, 45, end)

	assert.Equal(t, MaxPerPage, NewPagination(1, 1000, 5).PerPage)

	start, end = NewPagination(math.MaxInt, 20, 45).Bounds()
	assert.Equal(t, 45, start)
	assert.Equal(t, 45, end)

	start, end = Pagination{Page: -3, PerPage: 20, Total: 45}.Bounds()
	assert.Equal(t, 0, start)
	assert.Equal(t, 20, end)

	start, end = NewPagination(1, 20, 0).Bounds()
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
}

func TestUserIDContext(t *testing.T) {
	assert.Nil(t, UserIDFromContext(context.Background()))

	ctx := ContextWithUserID(context.Background(), 9)
	id := UserIDFromContext(ctx)
	require.NotNil(t, id)
	assert.Equal(t, int64(9), *id)
}

func TestAuditLogValidate(t *testing.T) {
	require.Error(t, AuditLog{Action: "promotion.create"}.Validate())
	require.NoError(t, AuditLog{Action: "promotion.create", Entity: "promotion", EntityID: "1"}.Validate())

	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{}))
}

func TestIdempotencyStoreNilSafety(t *testing.T) {
	var store *IdempotencyStore
	require.Error(t, store.CheckAndInsert(context.Background(), "k", "m"))
	n, err := store.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, store.Delete(context.Background(), "k"))
}

type stubExecer struct {
	tags []string
	err  error
	sql  []string
	args [][]any
}

func (s *stubExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.sql = append(s.sql, sql)
	s.args = append(s.args, args)
	if s.err != nil {
		return pgconn.CommandTag{}, s.err
	}
	tag := s.tags[0]
	s.tags = s.tags[1:]
	return pgconn.NewCommandTag(tag), nil
}

func TestIdempotencyStoreCheckAndInsert(t *testing.T) {
	db := &stubExecer{tags: []string{"INSERT 0 1", "INSERT 0 0"}}
	store := NewIdempotencyStore(db)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "quote-apply:1:a", "promotions"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "quote-apply:1:a", "promotions"), ErrIdempotencyConflict)
	assert.Equal(t, []any{"quote-apply:1:a", "promotions"}, db.args[0])

	require.Error(t, store.CheckAndInsert(ctx, "", "promotions"))
	require.Error(t, store.CheckAndInsert(ctx, "k", ""))

	dup := NewIdempotencyStore(&stubExecer{err: &pgconn.PgError{Code: "23505"}})
	require.ErrorIs(t, dup.CheckAndInsert(ctx, "k", "m"), ErrIdempotencyConflict)

	boom := errors.New("connection refused")
	failing := NewIdempotencyStore(&stubExecer{err: boom})
	require.ErrorIs(t, failing.CheckAndInsert(ctx, "k", "m"), boom)
}

func TestIdempotencyStoreCleanup(t *testing.T) {
	db := &stubExecer{tags: []string{"DELETE 4"}}
	store := NewIdempotencyStore(db)

	n, err := store.Cleanup(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.True(t, strings.HasPrefix(db.sql[0], "DELETE FROM idempotency_keys"))
	assert.Equal(t, []any{72 * time.Hour}, db.args[0])

	n, err = store.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, db.sql, 1)
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &stubExecer{tags: []string{"INSERT 0 1"}}
	actor := int64(42)
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	err := NewAuditLogger(db).Record(context.Background(), AuditLog{
		ActorID:  &actor,
		Action:   "promotion.create",
		Entity:   "promotion",
		EntityID: "7",
		At:       at,
	})
	require.NoError(t, err)
	require.Len(t, db.args, 1)
	args := db.args[0]
	assert.Equal(t, &actor, args[0])
	assert.Equal(t, []byte("{}"), args[4])
	assert.Equal(t, &at, args[5])
}
