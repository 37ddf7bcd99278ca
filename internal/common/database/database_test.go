package database

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"krishmitra-advisor/internal/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("market_prices"))
	assert.True(t, ValidIdentifier("_chunks2"))
	assert.False(t, ValidIdentifier("Prices"))
	assert.False(t, ValidIdentifier("2prices"))
	assert.False(t, ValidIdentifier("prices; DROP TABLE x"))
	assert.False(t, ValidIdentifier(""))
}

func TestPostgresClient_InTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pg := NewPostgresFromDB(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE market_prices").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err = pg.InTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE market_prices SET trend = 'stable'")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = pg.InTx(context.Background(), func(*sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_NothingConfigured(t *testing.T) {
	b, err := Open(context.Background(), config.DatabaseConfig{}, NoRetry)
	require.NoError(t, err)
	assert.Empty(t, b.Names())
	assert.Empty(t, b.Checks())
	b.Close()
}

func TestOpen_RedisAndElasticsearch(t *testing.T) {
	mr := miniredis.RunT(t)
	es := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		assert.Equal(t, "/_cluster/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"green"}`))
	}))
	defer es.Close()

	b, err := Open(context.Background(), config.DatabaseConfig{
		Redis:         config.RedisConfig{Address: mr.Addr()},
		Elasticsearch: config.ElasticsearchConfig{URL: es.URL},
	}, NoRetry)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, []string{"elasticsearch", "redis"}, b.Names())
	checks := b.Checks()
	require.Len(t, checks, 2)
	for name, check := range checks {
		assert.NoError(t, check(context.Background()), name)
	}

	mr.Close()
	assert.Error(t, checks["redis"](context.Background()))
}

func TestOpen_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	attempts := 0
	retry := func(op func() error, n int, name string) error {
		attempts++
		assert.Equal(t, 10, n)
		return NoRetry(op, n, name)
	}
	_, err := Open(context.Background(), config.DatabaseConfig{Redis: config.RedisConfig{Address: addr}}, retry)
	assert.ErrorContains(t, err, "Redis connection")
	assert.Equal(t, 1, attempts)
}

func TestNewElasticsearch_NoAddress(t *testing.T) {
	_, err := NewElasticsearch(config.ElasticsearchConfig{})
	assert.Error(t, err)
}
