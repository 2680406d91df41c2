package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type stubPool struct {
	txs      []*stubTx
	beginErr error
}

func (p *stubPool) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if opts.IsoLevel != pgx.RepeatableRead {
		return nil, fmt.Errorf("unexpected isolation %s", opts.IsoLevel)
	}
	tx := &stubTx{}
	p.txs = append(p.txs, tx)
	return tx, nil
}

func TestWithTxCommits(t *testing.T) {
	pool := &stubPool{}
	require.NoError(t, WithTx(context.Background(), pool, func(pgx.Tx) error { return nil }))
	require.Len(t, pool.txs, 1)
	assert.True(t, pool.txs[0].committed)
}

func TestWithTxRetriesSerializationFailure(t *testing.T) {
	pool := &stubPool{}
	calls := 0
	err := WithTx(context.Background(), pool, func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update quote: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, pool.txs, 3)
	assert.True(t, pool.txs[0].rolledBack)
	assert.True(t, pool.txs[2].committed)
}

func TestWithTxGivesUp(t *testing.T) {
	pool := &stubPool{}
	deadlock := &pgconn.PgError{Code: "40P01"}
	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return deadlock })
	require.ErrorIs(t, err, deadlock)
	assert.Len(t, pool.txs, maxTxAttempts)
}

func TestWithTxDoesNotRetryOtherErrors(t *testing.T) {
	pool := &stubPool{}
	boom := errors.New("constraint")
	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Len(t, pool.txs, 1)
	assert.True(t, pool.txs[0].rolledBack)

	pool = &stubPool{beginErr: errors.New("pool closed")}
	require.Error(t, WithTx(context.Background(), pool, func(pgx.Tx) error { return nil }))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, Retryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, Retryable(errors.New("x")))
}
