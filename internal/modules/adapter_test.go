package modules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"krishmitra-advisor/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestResolveCrop(t *testing.T) {
	tests := []struct {
		explicit, text, want string
	}{
		{"", "What is the wheat price?", "wheat"},
		{"Paddy", "anything", "rice"},
		{"", "my paddy field is yellowing", "rice"},
		{"  Cotton ", "wheat price", "cotton"},
		{"", "should I irrigate today", ""},
		{"", "Wheat-rice rotation", "wheat"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveCrop(tt.explicit, tt.text))
		})
	}
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("When should I IRRIGATE?", "irrigate"))
	assert.False(t, ContainsAny("pricey seeds", "price"))
	assert.True(t, ContainsAny("how to reduce cost of inputs", "reduce cost"))
	assert.True(t, ContainsAny("soil-test based dose", "soil-test"))
	assert.False(t, ContainsAny("", "rain"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, FailureTimeout, KindOf(NewFailure(FailureTimeout, nil)))
	assert.Equal(t, FailureNetwork, KindOf(fmt.Errorf("wrapped: %w", NewFailure(FailureNetwork, errors.New("refused")))))
	assert.Equal(t, FailureTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, FailureInternal, KindOf(errors.New("boom")))
}

type fixed struct{ id models.ModuleID }

func (f fixed) ID() models.ModuleID { return f.id }

func (f fixed) Advise(context.Context, Input) (Output, error) { return Output{}, nil }

func TestCatalog_IDsAreCanonicalOrder(t *testing.T) {
	c := NewCatalog(fixed{models.ModulePolicy}, fixed{models.ModuleWeather}, fixed{models.ModuleFinance})

	assert.Equal(t, []models.ModuleID{models.ModuleWeather, models.ModuleFinance, models.ModulePolicy}, c.IDs())
	_, ok := c.Get(models.ModuleCrop)
	assert.False(t, ok)
}

func TestInput_UpstreamOf(t *testing.T) {
	in := Input{Upstream: []models.ModuleResponse{
		{ModuleID: models.ModuleWeather, Status: models.StatusOK, Advice: "rain"},
		{ModuleID: models.ModuleFinance, Status: models.StatusFailed},
	}}

	r, ok := in.UpstreamOf(models.ModuleWeather)
	assert.True(t, ok)
	assert.Equal(t, "rain", r.Advice)

	_, ok = in.UpstreamOf(models.ModuleFinance)
	assert.False(t, ok)
}
