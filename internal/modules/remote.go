package modules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	commonhttp "krishmitra-advisor/internal/common/http"
	"krishmitra-advisor/internal/common/validation"
	"krishmitra-advisor/internal/models"

	"github.com/sony/gobreaker"
)

var outputSchema = validation.MustCompile("module-output", `{
  "type": "object",
  "required": ["advice", "confidence"],
  "properties": {
    "advice": {"type": "string"},
    "urgency": {"type": "string", "enum": ["low", "medium", "high"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "topic": {"type": "string"},
    "stance": {"type": "string"},
    "evidence": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "excerpt"],
        "properties": {
          "source": {"type": "string", "minLength": 1},
          "excerpt": {"type": "string"},
          "date": {"type": "string"},
          "geo": {"type": "string"},
          "crop": {"type": "string"},
          "score": {"type": "number"}
        }
      }
    }
  }
}`)

const (
	defaultTripAfter = 5
	defaultCooldown  = 30 * time.Second
)

// HTTPAdapter calls a module served over HTTP at BaseURL/advise. Consecutive transport
// failures open a breaker; while open, calls fail fast with FailureNetwork.
type HTTPAdapter struct {
	id      models.ModuleID
	baseURL string
	client  *commonhttp.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPAdapter(id models.ModuleID, baseURL string, timeout time.Duration, retries int) *HTTPAdapter {
	a := &HTTPAdapter{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  commonhttp.NewClient(timeout).WithRetries(retries),
	}
	return a.WithBreaker(defaultTripAfter, defaultCooldown)
}

// WithBreaker replaces the breaker. tripAfter is the number of consecutive failures that
// opens it and cooldown how long it stays open before a probe is let through.
func (a *HTTPAdapter) WithBreaker(tripAfter int, cooldown time.Duration) *HTTPAdapter {
	if tripAfter <= 0 {
		tripAfter = defaultTripAfter
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "module-" + string(a.id),
		Timeout: cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(tripAfter)
		},
		// a rejected input says nothing about the module's health
		IsSuccessful: func(err error) bool {
			return err == nil || KindOf(err) == FailureInvalidInput
		},
	})
	return a
}

func (a *HTTPAdapter) ID() models.ModuleID { return a.id }

func (a *HTTPAdapter) Advise(ctx context.Context, in Input) (Output, error) {
	res, err := a.breaker.Execute(func() (interface{}, error) {
		return a.advise(ctx, in)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Output{}, NewFailure(FailureNetwork, fmt.Errorf("module %s: %w", a.id, err))
	}
	if err != nil {
		return Output{}, err
	}
	return res.(Output), nil
}

func (a *HTTPAdapter) advise(ctx context.Context, in Input) (Output, error) {
	body, err := a.client.PostJSON(ctx, a.baseURL+"/advise", in)
	if err != nil {
		return Output{}, ClassifyTransportError(ctx, err)
	}

	if res := outputSchema.ValidateBytes(body); !res.Valid {
		return Output{}, NewFailure(FailureInternal, res.Err())
	}

	var out Output
	if err := json.Unmarshal(body, &out); err != nil {
		return Output{}, NewFailure(FailureInternal, fmt.Errorf("decode module output: %w", err))
	}
	if out.Urgency == "" {
		out.Urgency = models.UrgencyMedium
	}
	return out, nil
}

// ClassifyTransportError maps an HTTP client error onto a Failure.
func ClassifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return NewFailure(FailureTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewFailure(FailureTimeout, err)
	}
	var se *commonhttp.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusUnprocessableEntity {
			return NewFailure(FailureInvalidInput, err)
		}
		if se.StatusCode >= 500 {
			return NewFailure(FailureNetwork, err)
		}
		return NewFailure(FailureInternal, err)
	}
	return NewFailure(FailureNetwork, err)
}
