// Package weather advises from a WeatherAPI-compatible forecast.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	commonhttp "krishmitra-advisor/internal/common/http"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
)

const (
	SourceCurrent  = "real_time_weather_api"
	SourceForecast = "weather_forecast_api"

	TopicIrrigation = "irrigation-timing"
	StanceIrrigate  = "irrigate"
	StanceDefer     = "defer"

	defaultPlace = "Delhi, India"
)

var ErrMissingAPIKey = errors.New("WEATHER_API_KEY_MISSING")

var coordPattern = regexp.MustCompile(`^\s*(-?\d{1,2}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)\s*$`)

type Config struct {
	APIKey  string
	BaseURL string
	Days    int
	Timeout time.Duration
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Module struct {
	config Config
	client *commonhttp.Client
	logger Logger
}

func New(config Config, log Logger) *Module {
	if config.Days <= 0 {
		config.Days = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Module{
		config: config,
		client: commonhttp.NewClient(config.Timeout).WithRetries(1),
		logger: log,
	}
}

func (m *Module) ID() models.ModuleID { return models.ModuleWeather }

func (m *Module) Advise(ctx context.Context, in modules.Input) (modules.Output, error) {
	if m.config.APIKey == "" {
		return modules.Output{}, modules.NewFailure(modules.FailureNetwork, ErrMissingAPIKey)
	}

	q, isCoord := ParseLocation(in.Location)
	endpoint := fmt.Sprintf("%s/forecast.json?%s", strings.TrimRight(m.config.BaseURL, "/"), url.Values{
		"key":    {m.config.APIKey},
		"q":      {q},
		"days":   {strconv.Itoa(m.config.Days)},
		"aqi":    {"no"},
		"alerts": {"yes"},
	}.Encode())

	body, err := m.client.GetJSON(ctx, endpoint)
	if err != nil {
		m.logger.Warn("forecast request failed", map[string]interface{}{"q": q, "error": err.Error()})
		return modules.Output{}, modules.ClassifyTransportError(ctx, err)
	}

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return modules.Output{}, modules.NewFailure(modules.FailureInternal, fmt.Errorf("decode forecast: %w", err))
	}
	if len(resp.Forecast.ForecastDay) == 0 {
		return modules.Output{}, modules.NewFailure(modules.FailureInternal, errors.New("forecast contains no days"))
	}

	outlook := Read(resp)
	m.logger.Debug("forecast read", map[string]interface{}{
		"place":      outlook.Place,
		"coordinate": isCoord,
		"rainChance": outlook.RainChance,
		"precipMM":   outlook.PrecipMM,
	})
	return compose(in, resp, outlook), nil
}

// ParseLocation returns the WeatherAPI q parameter for a location and whether it was a
// "lat,lon" pair. An empty location falls back to a default place.
func ParseLocation(location string) (string, bool) {
	if match := coordPattern.FindStringSubmatch(location); match != nil {
		lat, _ := strconv.ParseFloat(match[1], 64)
		lon, _ := strconv.ParseFloat(match[2], 64)
		if lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 {
			return fmt.Sprintf("%s,%s", match[1], match[2]), true
		}
	}
	if strings.TrimSpace(location) == "" {
		return defaultPlace, false
	}
	return strings.TrimSpace(location), false
}

// Read interprets the forecast for tomorrow, or today when only one day is returned.
func Read(resp forecastResponse) Outlook {
	days := resp.Forecast.ForecastDay
	day := days[0]
	if len(days) > 1 {
		day = days[1]
	}

	o := Outlook{
		Place:      resp.Location.Name,
		Date:       day.Date,
		Condition:  day.Day.Condition.Text,
		MinTempC:   day.Day.MinTempC,
		MaxTempC:   day.Day.MaxTempC,
		RainChance: day.Day.DailyChanceOfRain,
		PrecipMM:   day.Day.TotalPrecipMM,
	}
	if o.Place == "" {
		o.Place = "your area"
	}
	for _, a := range resp.Alerts.Alert {
		o.Alerts = append(o.Alerts, a.Headline)
	}
	o.RainExpected = o.RainChance >= 60 || o.PrecipMM >= 5
	o.HeavyRain = o.PrecipMM >= 50 || (o.RainChance >= 80 && o.PrecipMM >= 20)
	o.Heat = o.MaxTempC >= 40
	return o
}

func compose(in modules.Input, resp forecastResponse, o Outlook) modules.Output {
	var b strings.Builder
	fmt.Fprintf(&b, "Forecast for %s on %s: %s, %.0f-%.0f°C, %.0f%% chance of rain (%.1f mm).",
		o.Place, o.Date, o.Condition, o.MinTempC, o.MaxTempC, o.RainChance, o.PrecipMM)

	out := modules.Output{Confidence: 0.95, Urgency: models.UrgencyLow}

	if modules.ContainsAny(in.Text, "irrigate", "irrigation", "irrigating", "water", "watering") {
		out.Topic = TopicIrrigation
		if o.RainExpected {
			out.Stance = StanceDefer
			b.WriteString(" Rain is likely, so postpone irrigation and keep field drains open.")
		} else {
			out.Stance = StanceIrrigate
			b.WriteString(" Little rain is expected, so irrigate in the early morning or evening to limit evaporation.")
		}
	}
	if o.RainExpected {
		out.Urgency = models.UrgencyMedium
	}
	if o.HeavyRain {
		out.Urgency = models.UrgencyHigh
		b.WriteString(" Heavy rain is forecast: delay spraying and fertilizer application and protect harvested produce.")
	}
	if o.Heat {
		out.Urgency = models.UrgencyHigh
		b.WriteString(" Heat stress risk: avoid field work at midday and keep the soil moist.")
	}
	if len(o.Alerts) > 0 {
		out.Urgency = models.UrgencyHigh
		fmt.Fprintf(&b, " Active alert: %s.", strings.Join(o.Alerts, "; "))
	}
	out.Advice = b.String()

	date := resp.Current.LastUpdated
	if len(date) >= 10 {
		date = date[:10]
	}
	crop := in.Crop
	if crop == "" {
		crop = "all"
	}
	out.Evidence = []models.Evidence{
		{
			Source:  SourceCurrent,
			Excerpt: fmt.Sprintf("Live weather data from %s: %s at %.1f°C", o.Place, resp.Current.Condition.Text, resp.Current.TempC),
			Date:    date,
			Geo:     o.Place,
			Crop:    crop,
		},
		{
			Source:  SourceForecast,
			Excerpt: forecastSummary(resp.Forecast.ForecastDay),
			Date:    date,
			Geo:     o.Place,
			Crop:    crop,
		},
	}
	return out
}

func forecastSummary(days []forecastDay) string {
	if len(days) > 3 {
		days = days[:3]
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, fmt.Sprintf("%s: %s (%.0f-%.0f°C, %.1fmm rain)",
			d.Date, d.Day.Condition.Text, d.Day.MinTempC, d.Day.MaxTempC, d.Day.TotalPrecipMM))
	}
	return fmt.Sprintf("%d-day forecast: %s", len(parts), strings.Join(parts, ", "))
}
