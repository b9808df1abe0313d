package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"event-registration/internal/status"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationCache_Put(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCorrelationCache(db)

	mock.ExpectSet("payment:ref:ref-1", "payer1", 3*time.Minute).SetVal("OK")

	require.NoError(t, cache.Put(context.Background(), "ref-1", "payer1", 3*time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrelationCache_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectGet("payment:ref:ref-1").SetVal("payer1")

		payerID, err := NewCorrelationCache(db).Get(ctx, "ref-1")
		require.NoError(t, err)
		assert.Equal(t, "payer1", payerID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectGet("payment:ref:ref-2").RedisNil()

		_, err := NewCorrelationCache(db).Get(ctx, "ref-2")
		assert.ErrorIs(t, err, status.ErrCorrelationMiss)
	})

	t.Run("redis down", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectGet("payment:ref:ref-3").SetErr(errors.New("connection refused"))

		_, err := NewCorrelationCache(db).Get(ctx, "ref-3")
		require.Error(t, err)
		assert.NotErrorIs(t, err, status.ErrCorrelationMiss)
	})
}

func TestCorrelationCache_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectDel("payment:ref:ref-1").SetVal(1)

	require.NoError(t, NewCorrelationCache(db).Delete(context.Background(), "ref-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
