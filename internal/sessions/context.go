package sessions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"krishmitra-advisor/internal/models"

	"github.com/redis/go-redis/v9"
)

const pendingField = "pending"

// Context is what a session remembers between turns: the module still waiting for the
// farmer's reply and the facts each module asked to keep.
type Context struct {
	Pending models.ModuleID
	Facts   map[models.ModuleID]map[string]float64
}

func contextKey(sessionID string) string {
	return keyPrefix + sessionID + ":context"
}

// LoadContext returns the stored context. An unknown or expired session yields an empty one.
func (s *Store) LoadContext(ctx context.Context, sessionID string) (Context, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return Context{}, ErrNoSessionID
	}
	raw, err := s.client.HGetAll(ctx, contextKey(id)).Result()
	if err != nil {
		return Context{}, fmt.Errorf("%w: load context %s: %v", ErrSessionStore, id, err)
	}

	c := Context{Facts: map[models.ModuleID]map[string]float64{}}
	for field, value := range raw {
		if field == pendingField {
			c.Pending = models.ModuleID(value)
			continue
		}
		module, name, ok := strings.Cut(field, ":")
		if !ok || name == "" {
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			s.log.Warn("skipping corrupt session fact", map[string]interface{}{"sessionId": id, "field": field})
			continue
		}
		m := models.ModuleID(module)
		if c.Facts[m] == nil {
			c.Facts[m] = map[string]float64{}
		}
		c.Facts[m][name] = v
	}
	return c, nil
}

// SaveContext merges c.Facts into the stored facts and replaces the pending module; an empty
// Pending clears it. The context TTL is refreshed on every save.
func (s *Store) SaveContext(ctx context.Context, sessionID string, c Context) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return ErrNoSessionID
	}

	values := map[string]interface{}{}
	for module, facts := range c.Facts {
		for name, v := range facts {
			values[string(module)+":"+name] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	if c.Pending != "" {
		values[pendingField] = string(c.Pending)
	}

	k := contextKey(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if c.Pending == "" {
			pipe.HDel(ctx, k, pendingField)
		}
		if len(values) > 0 {
			pipe.HSet(ctx, k, values)
		}
		pipe.Expire(ctx, k, s.cfg.ContextTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save context %s: %v", ErrSessionStore, id, err)
	}
	return nil
}
