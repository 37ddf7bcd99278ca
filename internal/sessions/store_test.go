package sessions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"krishmitra-advisor/internal/common/logger"
	"krishmitra-advisor/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, cfg, logger.NewTestLogger(t)), mr
}

func answer(run string) models.SynthesizedAnswer {
	return models.SynthesizedAnswer{
		RunID:            run,
		Text:             "answer " + run,
		Confidence:       0.8,
		ModulesConsulted: []models.ModuleID{models.ModuleFinance},
		Trace:            []string{"step:done"},
	}
}

func TestAppendAndHistory(t *testing.T) {
	s, mr := newMiniStore(t, Config{TTL: time.Hour, MaxEntries: 3})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		q := models.Query{Text: fmt.Sprintf("question %d", i), SessionID: "farmer-42"}
		require.NoError(t, s.Append(ctx, q, answer(fmt.Sprintf("r%d", i))))
	}

	all, err := s.History(ctx, "farmer-42", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].RunID)
	assert.Equal(t, "r5", all[2].RunID)
	assert.Equal(t, "question 5", all[2].Question)
	assert.Equal(t, []models.ModuleID{models.ModuleFinance}, all[2].Modules)

	last, err := s.History(ctx, "farmer-42", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "r5", last[0].RunID)

	assert.Equal(t, time.Hour, mr.TTL(key("farmer-42")))
	mr.FastForward(2 * time.Hour)
	gone, err := s.History(ctx, "farmer-42", 0)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestHistorySkipsCorruptEntries(t *testing.T) {
	s, mr := newMiniStore(t, Config{})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, models.Query{Text: "q", SessionID: "s"}, answer("r1")))
	_, err := mr.RPush(key("s"), "{not json")
	require.NoError(t, err)

	entries, err := s.History(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].RunID)
}

func TestSessionIDRequired(t *testing.T) {
	s, _ := newMiniStore(t, Config{})

	assert.ErrorIs(t, s.Append(context.Background(), models.Query{Text: "q"}, answer("r")), ErrNoSessionID)
	_, err := s.History(context.Background(), "  ", 0)
	assert.ErrorIs(t, err, ErrNoSessionID)
}

func TestClear(t *testing.T) {
	s, mr := newMiniStore(t, Config{})
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, models.Query{Text: "q", SessionID: "s"}, answer("r1")))

	require.NoError(t, s.SaveContext(ctx, "s", Context{Pending: models.ModuleFinance}))

	require.NoError(t, s.Clear(ctx, "s"))
	assert.False(t, mr.Exists(key("s")))
	assert.False(t, mr.Exists(contextKey("s")))
}

func TestRedisFailuresAreWrapped(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s := NewStore(client, Config{}, logger.NewTestLogger(t))

	mock.ExpectLRange(key("s"), -5, -1).SetErr(errors.New("READONLY You can't write against a read only replica"))
	_, err := s.History(context.Background(), "s", 5)
	assert.ErrorIs(t, err, ErrSessionStore)

	mock.ExpectDel(key("s"), contextKey("s")).SetErr(errors.New("connection reset by peer"))
	assert.ErrorIs(t, s.Clear(context.Background(), "s"), ErrSessionStore)

	assert.NoError(t, mock.ExpectationsWereMet())
}
