package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"krishmitra-advisor/internal/common/database"
	commonerrors "krishmitra-advisor/internal/common/errors"
)

type Price struct {
	Crop       string
	Current    float64
	Currency   string
	Trend      string
	Min        float64
	Max        float64
	Demand     string
	Markets    []string
	PeakSeason string
}

// PriceSource looks up the latest market price of a crop. found is false when the crop is unknown.
type PriceSource interface {
	Price(ctx context.Context, crop string) (p Price, found bool, err error)
}

// StaticPrices is the built-in price table.
type StaticPrices map[string]Price

func DefaultPrices() StaticPrices {
	return StaticPrices{
		"wheat": {
			Crop: "wheat", Current: 2100, Currency: "INR/quintal", Trend: "stable",
			Min: 2000, Max: 2200, Demand: "high",
			Markets: []string{"Punjab", "Haryana", "UP"}, PeakSeason: "April-May",
		},
		"rice": {
			Crop: "rice", Current: 2400, Currency: "INR/quintal", Trend: "increasing",
			Min: 2200, Max: 2600, Demand: "very high",
			Markets: []string{"Punjab", "Tamil Nadu", "Andhra Pradesh"}, PeakSeason: "October-November",
		},
		"cotton": {
			Crop: "cotton", Current: 6500, Currency: "INR/quintal", Trend: "increasing",
			Min: 6000, Max: 7000, Demand: "high",
			Markets: []string{"Gujarat", "Maharashtra", "Telangana"}, PeakSeason: "December-February",
		},
		"sugarcane": {
			Crop: "sugarcane", Current: 350, Currency: "INR/quintal", Trend: "stable",
			Min: 320, Max: 380, Demand: "stable",
			Markets: []string{"UP", "Maharashtra", "Karnataka"}, PeakSeason: "December-March",
		},
	}
}

func (s StaticPrices) Price(_ context.Context, crop string) (Price, bool, error) {
	p, ok := s[strings.ToLower(crop)]
	return p, ok, nil
}

// PostgresPrices reads the newest row per crop from a market price table, falling back to
// another source for crops the table does not carry.
type PostgresPrices struct {
	db       *database.PostgresClient
	query    string
	fallback PriceSource
}

func NewPostgresPrices(db *database.PostgresClient, table string, fallback PriceSource) (*PostgresPrices, error) {
	if !database.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid price table name %q", table)
	}
	return &PostgresPrices{
		db: db,
		query: fmt.Sprintf(`SELECT current_price, currency, trend, min_price, max_price, demand, markets, peak_season
FROM %s WHERE crop = $1 ORDER BY updated_at DESC LIMIT 1`, table),
		fallback: fallback,
	}, nil
}

func (p *PostgresPrices) Price(ctx context.Context, crop string) (Price, bool, error) {
	var (
		out     = Price{Crop: strings.ToLower(crop)}
		markets string
	)
	err := p.db.QueryRow(ctx, p.query, out.Crop).Scan(
		&out.Current, &out.Currency, &out.Trend, &out.Min, &out.Max, &out.Demand, &markets, &out.PeakSeason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if p.fallback != nil {
			return p.fallback.Price(ctx, crop)
		}
		return Price{}, false, nil
	}
	if err != nil {
		return Price{}, false, commonerrors.NewDatabaseFailedError(fmt.Errorf("query market price: %w", err))
	}
	for _, m := range strings.Split(markets, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out.Markets = append(out.Markets, m)
		}
	}
	return out, true, nil
}
