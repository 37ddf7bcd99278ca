package weather

// forecastResponse is the subset of the WeatherAPI forecast.json payload the module reads.
type forecastResponse struct {
	Location struct {
		Name    string  `json:"name"`
		Region  string  `json:"region"`
		Country string  `json:"country"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	} `json:"location"`
	Current struct {
		LastUpdated string  `json:"last_updated"`
		TempC       float64 `json:"temp_c"`
		Humidity    float64 `json:"humidity"`
		PrecipMM    float64 `json:"precip_mm"`
		Condition   struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []forecastDay `json:"forecastday"`
	} `json:"forecast"`
	Alerts struct {
		Alert []struct {
			Headline string `json:"headline"`
			Severity string `json:"severity"`
		} `json:"alert"`
	} `json:"alerts"`
}

type forecastDay struct {
	Date string `json:"date"`
	Day  struct {
		MaxTempC          float64 `json:"maxtemp_c"`
		MinTempC          float64 `json:"mintemp_c"`
		TotalPrecipMM     float64 `json:"totalprecip_mm"`
		DailyChanceOfRain float64 `json:"daily_chance_of_rain"`
		Condition         struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"day"`
}

// Outlook is the module's reading of the forecast for the next day.
type Outlook struct {
	Place        string
	Date         string
	Condition    string
	MinTempC     float64
	MaxTempC     float64
	RainChance   float64
	PrecipMM     float64
	Alerts       []string
	RainExpected bool
	HeavyRain    bool
	Heat         bool
}
