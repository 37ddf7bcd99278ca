package finance

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"krishmitra-advisor/internal/common/database"
	"krishmitra-advisor/internal/common/logger"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModule(t *testing.T, prices PriceSource) *Module {
	t.Helper()
	m := New(prices, DefaultFollowUpPolicy(), logger.NewTestLogger(t))
	m.now = func() time.Time { return time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC) }
	return m
}

func TestModule_Advise_WheatPrice(t *testing.T) {
	m := newModule(t, nil)

	out, err := m.Advise(context.Background(), modules.Input{Text: "What is the wheat price?"})
	require.NoError(t, err)

	assert.Contains(t, out.Advice, "₹2100")
	assert.Equal(t, 0.9, out.Confidence)
	assert.Equal(t, TopicMarketPrice, out.Topic)
	assert.Equal(t, "sell", out.Stance)
	assert.Equal(t, models.UrgencyMedium, out.Urgency)
	require.Len(t, out.Evidence, 1)
	assert.Equal(t, "Agricultural Market Intelligence - Wheat", out.Evidence[0].Source)
	assert.Equal(t, "2024-05-02", out.Evidence[0].Date)
	assert.Equal(t, "National", out.Evidence[0].Geo)
}

func TestModule_Advise_Branches(t *testing.T) {
	tests := []struct {
		name       string
		in         modules.Input
		contains   string
		confidence float64
	}{
		{"rising price says hold", modules.Input{Text: "mandi rate for paddy"}, "holding stock", 0.9},
		{"unknown crop price", modules.Input{Text: "groundnut market price"}, "eNAM", 0.6},
		{"no crop price", modules.Input{Text: "where can I sell"}, "Agmarknet", 0.6},
		{"credit", modules.Input{Text: "I need a loan for my farm"}, "Kisan Credit Card", 0.75},
		{"optimise without data", modules.Input{Text: "How can I optimize my farm expenses?"}, "How many acres", 0.6},
		{"unrelated", modules.Input{Text: "tell me about farming"}, "season-wise record", 0.6},
	}
	m := newModule(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := m.Advise(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Contains(t, out.Advice, tt.contains)
			assert.Equal(t, tt.confidence, out.Confidence)
		})
	}
}

func TestModule_Advise_OptimiseWithFigures(t *testing.T) {
	m := newModule(t, nil)

	out, err := m.Advise(context.Background(), modules.Input{
		Text: "Help me optimize: 5 acres, 100 quintals a year, I spend 2000 on fertilizer and water cost 1500",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.8, out.Confidence)
	assert.Contains(t, out.Advice, "farm size 5.0 acres")
	assert.Contains(t, out.Advice, "productivity 20.0 quintals per acre")
	assert.Contains(t, out.Advice, "₹3500")
}

func TestModule_Advise_CollectsFiguresAcrossTurns(t *testing.T) {
	m := newModule(t, nil)
	ctx := context.Background()

	first, err := m.Advise(ctx, modules.Input{Text: "How can I improve my farm profit?"})
	require.NoError(t, err)
	assert.True(t, first.AwaitingReply)
	assert.Contains(t, first.Advice, "How many acres")
	assert.Equal(t, map[string]float64{goalFact: float64(goalOptimise)}, first.Facts)

	second, err := m.Advise(ctx, modules.Input{Text: "I have 5 acres and spend 3000 on seeds", Facts: first.Facts})
	require.NoError(t, err)
	assert.True(t, second.AwaitingReply)
	assert.NotContains(t, second.Advice, "How many acres")
	assert.Contains(t, second.Advice, "fertilizers")
	assert.Equal(t, 5.0, second.Facts["land_size_acres"])
	assert.Equal(t, 3000.0, second.Facts["seed_cost"])

	third, err := m.Advise(ctx, modules.Input{Text: "fertilizer costs 20000", Facts: second.Facts})
	require.NoError(t, err)
	assert.False(t, third.AwaitingReply)
	assert.Equal(t, 0.8, third.Confidence)
	assert.Contains(t, third.Advice, "farm size 5.0 acres")
	assert.Contains(t, third.Advice, "₹23000")
}

func TestModule_Advise_FreshFiguresOverrideRemembered(t *testing.T) {
	m := newModule(t, nil)

	out, err := m.Advise(context.Background(), modules.Input{
		Text:  "Actually it is 8 acres",
		Facts: map[string]float64{goalFact: float64(goalProfit), "land_size_acres": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 8.0, out.Facts["land_size_acres"])
	assert.Contains(t, out.Advice, "farm size 8.0 acres")
}

func TestModule_Advise_Failures(t *testing.T) {
	m := newModule(t, nil)
	_, err := m.Advise(context.Background(), modules.Input{Text: " "})
	assert.Equal(t, modules.FailureInvalidInput, modules.KindOf(err))

	broken := newModule(t, failingPrices{})
	_, err = broken.Advise(context.Background(), modules.Input{Text: "wheat price"})
	assert.Equal(t, modules.FailureNetwork, modules.KindOf(err))
}

type failingPrices struct{}

func (failingPrices) Price(context.Context, string) (Price, bool, error) {
	return Price{}, false, errors.New("connection reset")
}

func TestExtractParams(t *testing.T) {
	p := ExtractParams("I farm 2 hectares, grow 40 qtl, labour costs Rs 8000 and ₹3000 for seeds")
	assert.InDelta(t, 4.94, p["land_size_acres"], 0.001)
	assert.Equal(t, 40.0, p["annual_production"])
	assert.Equal(t, 8000.0, p["labor_cost"])
	assert.Equal(t, 3000.0, p["seed_cost"])
	assert.NotContains(t, p, "machinery_cost")
}

func TestFollowUpPolicy(t *testing.T) {
	pol := DefaultFollowUpPolicy()

	assert.True(t, pol.NeedsFollowUp(map[string]float64{}, goalOptimise))
	assert.True(t, pol.NeedsFollowUp(map[string]float64{"land_size_acres": 3, "seed_cost": 100}, goalOptimise))
	assert.False(t, pol.NeedsFollowUp(map[string]float64{"land_size_acres": 3}, goalProfit))
	assert.False(t, pol.NeedsFollowUp(map[string]float64{}, goalNone))

	qs := FollowUpQuestions(map[string]float64{"land_size_acres": 3})
	require.Len(t, qs, 3)
	assert.Contains(t, qs[0], "annual production")
	assert.Contains(t, qs[1], "fertilizers, irrigation and water, seeds")
}

func newMockPrices(t *testing.T, fallback PriceSource) (*PostgresPrices, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p, err := NewPostgresPrices(database.NewPostgresFromDB(db), "market_prices", fallback)
	require.NoError(t, err)
	return p, mock
}

var priceQuery = regexp.QuoteMeta("FROM market_prices WHERE crop = $1")

func TestPostgresPrices(t *testing.T) {
	columns := []string{"current_price", "currency", "trend", "min_price", "max_price", "demand", "markets", "peak_season"}

	t.Run("row found", func(t *testing.T) {
		p, mock := newMockPrices(t, nil)
		mock.ExpectQuery(priceQuery).WithArgs("maize").WillReturnRows(
			sqlmock.NewRows(columns).AddRow(1950.0, "INR/quintal", "falling", 1800.0, 2050.0, "medium", "Bihar, Karnataka ,", "October"))

		got, found, err := p.Price(context.Background(), "Maize")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 1950.0, got.Current)
		assert.Equal(t, []string{"Bihar", "Karnataka"}, got.Markets)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row uses fallback", func(t *testing.T) {
		p, mock := newMockPrices(t, DefaultPrices())
		mock.ExpectQuery(priceQuery).WithArgs("wheat").WillReturnError(sql.ErrNoRows)

		got, found, err := p.Price(context.Background(), "wheat")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 2100.0, got.Current)
	})

	t.Run("missing row without fallback", func(t *testing.T) {
		p, mock := newMockPrices(t, nil)
		mock.ExpectQuery(priceQuery).WithArgs("jute").WillReturnError(sql.ErrNoRows)

		_, found, err := p.Price(context.Background(), "jute")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("query error", func(t *testing.T) {
		p, mock := newMockPrices(t, DefaultPrices())
		mock.ExpectQuery(priceQuery).WithArgs("wheat").WillReturnError(errors.New("connection refused"))

		_, _, err := p.Price(context.Background(), "wheat")
		assert.ErrorContains(t, err, "query market price")
	})

	t.Run("bad table name", func(t *testing.T) {
		_, err := NewPostgresPrices(nil, "prices; DROP TABLE x", nil)
		assert.Error(t, err)
	})
}
