package registry

// Default is the registry used when no registry file is configured.
func Default() *ModuleRegistry {
	return &ModuleRegistry{
		Version: "1.0.0",
		Modules: []ModuleEntry{
			{
				ID:          "weather",
				DisplayName: "Weather",
				Description: "Forecasts, rainfall and heat alerts for the farm location",
				Keywords: []string{
					"weather", "rain", "rainfall", "drought", "temperature", "heat", "cold",
					"storm", "forecast", "alert", "irrigation", "irrigate", "water", "humidity", "monsoon",
				},
				Specificity: 2,
				Topics:      []string{"irrigation-timing", "weather-alert"},
				Status:      StatusEnabled,
			},
			{
				ID:          "crop",
				DisplayName: "Crop Management",
				Description: "Irrigation, fertilizer, pest and planting guidance per crop",
				Keywords: []string{
					"fertilizer", "fertiliser", "npk", "urea", "pest", "pests", "disease", "plant",
					"sow", "sowing", "transplant", "spacing", "growth", "irrigation", "irrigate", "harvest", "seed",
				},
				DependsOn:   []string{"weather"},
				Specificity: 1,
				Topics:      []string{"irrigation-timing", "fertilizer", "pest-control", "planting"},
				Status:      StatusEnabled,
			},
			{
				ID:          "finance",
				DisplayName: "Finance",
				Description: "Market prices, input costs, credit and profit planning",
				Keywords: []string{
					"price", "prices", "market", "mandi", "rate", "cost", "loan", "credit", "bank",
					"finance", "money", "investment", "profit", "sell",
				},
				Specificity: 3,
				Topics:      []string{"market-price", "profitability"},
				Status:      StatusEnabled,
			},
			{
				ID:          "policy",
				DisplayName: "Government Schemes",
				Description: "Central and state schemes, subsidies and eligibility",
				Keywords: []string{
					"scheme", "schemes", "policy", "policies", "government", "benefit", "benefits",
					"subsidy", "subsidies", "allowance", "grant", "grants",
					"pm kisan", "pm-kisan", "pmkisan", "pradhan mantri", "nabard", "eligible",
					"eligibility", "apply", "application", "registration", "form", "document",
					"documents", "how to get", "how to apply", "kisan credit", "crop insurance",
					"fasal bima", "soil health", "pension", "msp", "minimum support", "enroll",
					"enrollment", "register",
				},
				Specificity: 4,
				Topics:      []string{"scheme-eligibility"},
				Status:      StatusEnabled,
			},
			{
				ID:          "general",
				DisplayName: "General Advice",
				Description: "Generic agronomic guidance when no specialist applies",
				Specificity: 5,
				Status:      StatusEnabled,
			},
		},
	}
}
