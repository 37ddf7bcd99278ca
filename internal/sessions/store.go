// Package sessions keeps per-session state in redis: a short log of answers for clients that
// show a conversation history, and the context the orchestrator carries between turns.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"krishmitra-advisor/internal/models"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSessionStore = errors.New("SESSION_STORE_FAILED")
	ErrNoSessionID  = errors.New("SESSION_ID_REQUIRED")
)

const keyPrefix = "krishmitra:session:"

type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
	// ContextTTL bounds how long an unanswered follow-up and its facts are kept.
	ContextTTL time.Duration
}

// Entry is one answered question.
type Entry struct {
	RunID      string            `json:"runId"`
	Question   string            `json:"question"`
	Answer     string            `json:"answer"`
	Confidence float64           `json:"confidence"`
	Modules    []models.ModuleID `json:"modules"`
	Trace      []string          `json:"trace"`
	Degraded   bool              `json:"degraded"`
	At         time.Time         `json:"at"`
}

type Store struct {
	client *redis.Client
	cfg    Config
	log    Logger
	now    func() time.Time
}

func NewStore(client *redis.Client, cfg Config, log Logger) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 20
	}
	if cfg.ContextTTL <= 0 {
		cfg.ContextTTL = 2 * time.Hour
	}
	return &Store{client: client, cfg: cfg, log: log, now: time.Now}
}

func key(sessionID string) string {
	return keyPrefix + sessionID + ":history"
}

// Append records the answer and keeps only the newest MaxEntries entries. The TTL is
// refreshed on every write.
func (s *Store) Append(ctx context.Context, q models.Query, a models.SynthesizedAnswer) error {
	id := strings.TrimSpace(q.SessionID)
	if id == "" {
		return ErrNoSessionID
	}
	data, err := json.Marshal(Entry{
		RunID:      a.RunID,
		Question:   q.Text,
		Answer:     a.Text,
		Confidence: a.Confidence,
		Modules:    a.ModulesConsulted,
		Trace:      a.Trace,
		Degraded:   a.Degraded,
		At:         s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encode entry: %v", ErrSessionStore, err)
	}

	k := key(id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, data)
		pipe.LTrim(ctx, k, int64(-s.cfg.MaxEntries), -1)
		pipe.Expire(ctx, k, s.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrSessionStore, id, err)
	}
	return nil
}

// History returns up to limit of the newest entries, oldest first. A limit of zero or less
// returns everything kept.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, ErrNoSessionID
	}
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, key(id), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSessionStore, id, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			s.log.Warn("skipping corrupt session entry", map[string]interface{}{"sessionId": id, "error": err.Error()})
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, key(sessionID), contextKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: clear %s: %v", ErrSessionStore, sessionID, err)
	}
	return nil
}
