// Package modules defines the contract every advisory module implements and the shared
// plumbing around it.
package modules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"krishmitra-advisor/internal/models"
)

type FailureKind string

const (
	FailureNetwork      FailureKind = "network"
	FailureTimeout      FailureKind = "timeout"
	FailureInvalidInput FailureKind = "invalid-input"
	FailureInternal     FailureKind = "internal"
)

// Input is what a module receives. Upstream holds the ok responses of the modules it depends on
// and Facts what the module kept from earlier turns of the same session.
type Input struct {
	Text     string                  `json:"text"`
	Location string                  `json:"location,omitempty"`
	Crop     string                  `json:"crop,omitempty"`
	Upstream []models.ModuleResponse `json:"upstream,omitempty"`
	Facts    map[string]float64      `json:"facts,omitempty"`
}

// Output is a module's answer. A module that asks the farmer a follow-up question sets
// AwaitingReply so the next turn of the session is routed back to it.
type Output struct {
	Advice        string             `json:"advice"`
	Urgency       models.Urgency     `json:"urgency"`
	Evidence      []models.Evidence  `json:"evidence"`
	Confidence    float64            `json:"confidence"`
	Topic         string             `json:"topic,omitempty"`
	Stance        string             `json:"stance,omitempty"`
	Facts         map[string]float64 `json:"facts,omitempty"`
	AwaitingReply bool               `json:"awaitingReply,omitempty"`
}

// Adapter is implemented by each advisory module. Advise must honour ctx cancellation.
type Adapter interface {
	ID() models.ModuleID
	Advise(ctx context.Context, in Input) (Output, error)
}

// Failure is the typed error a module returns.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// KindOf classifies any error returned by Advise. Untyped errors count as internal,
// except context deadlines which count as timeout.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureInternal
}

// Catalog holds the adapters available to the router.
type Catalog struct {
	adapters map[models.ModuleID]Adapter
}

func NewCatalog(adapters ...Adapter) *Catalog {
	c := &Catalog{adapters: make(map[models.ModuleID]Adapter, len(adapters))}
	for _, a := range adapters {
		c.Register(a)
	}
	return c
}

// Register replaces any adapter already registered under the same id.
func (c *Catalog) Register(a Adapter) {
	c.adapters[a.ID()] = a
}

func (c *Catalog) Get(id models.ModuleID) (Adapter, bool) {
	a, ok := c.adapters[id]
	return a, ok
}

func (c *Catalog) IDs() []models.ModuleID {
	out := make([]models.ModuleID, 0, len(c.adapters))
	for _, id := range models.CanonicalModules {
		if _, ok := c.adapters[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// UpstreamOf returns the ok response of module id among in.Upstream.
func (in Input) UpstreamOf(id models.ModuleID) (models.ModuleResponse, bool) {
	for _, r := range in.Upstream {
		if r.ModuleID == id && r.OK() {
			return r, true
		}
	}
	return models.ModuleResponse{}, false
}

var KnownCrops = []string{"wheat", "rice", "paddy", "maize", "cotton", "pulses", "sugarcane", "groundnut"}

// ResolveCrop returns the explicit crop or the first known crop named in text, normalised
// to lower case. "paddy" maps to rice.
func ResolveCrop(explicit, text string) string {
	c := strings.ToLower(strings.TrimSpace(explicit))
	if c == "" {
		for _, tok := range Tokens(text) {
			for _, known := range KnownCrops {
				if tok == known {
					c = known
					break
				}
			}
			if c != "" {
				break
			}
		}
	}
	if c == "paddy" {
		return "rice"
	}
	return c
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokens lower-cases text and splits it on non letter or digit runs.
func Tokens(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// ContainsAny reports whether text mentions any term. Single words match whole tokens and
// multi-word terms match as substrings of the lower-cased text.
func ContainsAny(text string, terms ...string) bool {
	lower := strings.ToLower(text)
	toks := Tokens(text)
	for _, term := range terms {
		if strings.ContainsAny(term, " -") {
			if strings.Contains(lower, term) {
				return true
			}
			continue
		}
		for _, tok := range toks {
			if tok == term {
				return true
			}
		}
	}
	return false
}
