package crop

import "krishmitra-advisor/internal/models"

type practice string

const (
	practiceIrrigation practice = "irrigation"
	practiceFertilizer practice = "fertilizer"
	practicePest       practice = "pest"
	practicePlanting   practice = "planting"
)

type guide struct {
	advice     string
	urgency    models.Urgency
	confidence float64
	evidence   *models.Evidence
}

var genericGuides = map[practice]guide{
	practiceIrrigation: {advice: "Follow standard irrigation practices for your crop and irrigate based on soil moisture.", urgency: models.UrgencyMedium, confidence: 0.8},
	practiceFertilizer: {advice: "Apply balanced NPK fertilizers based on soil test results.", urgency: models.UrgencyMedium, confidence: 0.8},
	practicePest:       {advice: "Monitor for pests regularly and treat only when threshold levels are reached, as per label instructions.", urgency: models.UrgencyHigh, confidence: 0.8},
	practicePlanting:   {advice: "Follow recommended planting practices for optimal crop establishment.", urgency: models.UrgencyMedium, confidence: 0.8},
}

var cropGuides = map[string]map[practice]guide{
	"wheat": {
		practiceIrrigation: {
			advice:     "Wheat requires irrigation at crown root, tillering, jointing, flowering, and grain filling stages.",
			urgency:    models.UrgencyMedium,
			confidence: 0.8,
			evidence: &models.Evidence{
				Source:  "wheat_irrigation_guide.pdf",
				Excerpt: "Irrigate wheat at crown root initiation (21 days), tillering, jointing, flowering and grain filling.",
				Date:    "2024-02-01", Geo: "Punjab", Crop: "wheat",
			},
		},
		practiceFertilizer: {
			advice:     "Apply 60:40:40 kg/ha NPK for wheat as recommended after a soil test. Split application: 50% at sowing, 25% at tillering, 25% at flowering.",
			urgency:    models.UrgencyMedium,
			confidence: 0.9,
			evidence: &models.Evidence{
				Source:  "wheat_fertilizer_guide.pdf",
				Excerpt: "Apply 60:40:40 kg/ha NPK for wheat. Split application: 50% at sowing, 25% at tillering, 25% at flowering.",
				Date:    "2024-02-01", Geo: "Punjab", Crop: "wheat",
			},
		},
		practicePest: {
			advice:     "Monitor for yellow rust in wheat during February-March. Apply a recommended fungicide if disease severity exceeds 10%.",
			urgency:    models.UrgencyHigh,
			confidence: 0.85,
			evidence: &models.Evidence{
				Source:  "wheat_disease_alert.pdf",
				Excerpt: "Monitor for yellow rust in wheat during February-March. Apply fungicide if disease severity exceeds 10%.",
				Date:    "2024-02-15", Geo: "Haryana", Crop: "wheat",
			},
		},
	},
	"rice": {
		practiceIrrigation: {
			advice:     "Rice requires continuous water supply. Maintain 2-3 cm water level during vegetative stage.",
			urgency:    models.UrgencyMedium,
			confidence: 0.85,
			evidence: &models.Evidence{
				Source:  "icar_rice_guide.pdf",
				Excerpt: "Maintain 2-3 cm standing water during the vegetative stage; drain the field 10 days before harvest.",
				Date:    "2024-01-15", Geo: "Karnataka", Crop: "rice",
			},
		},
		practicePlanting: {
			advice:     "Rice requires 120-150 days to mature. Transplant 25-30 day old seedlings at 20x15 cm spacing.",
			urgency:    models.UrgencyMedium,
			confidence: 0.8,
			evidence: &models.Evidence{
				Source:  "icar_rice_guide.pdf",
				Excerpt: "Rice requires 120-150 days to mature. Transplant 25-30 day old seedlings at 20x15 cm spacing.",
				Date:    "2024-01-15", Geo: "Karnataka", Crop: "rice",
			},
		},
	},
	"maize": {
		practiceIrrigation: {
			advice:     "Maize responds well to irrigation at knee-high, tasseling, and grain-filling stages. Avoid waterlogging.",
			urgency:    models.UrgencyMedium,
			confidence: 0.8,
			evidence: &models.Evidence{
				Source:  "maize_irrigation.pdf",
				Excerpt: "Maize responds well to irrigation at knee-high, tasseling, and grain-filling stages. Avoid waterlogging.",
				Date:    "2024-02-10", Geo: "Bihar", Crop: "maize",
			},
		},
	},
	"pulses": {
		practiceFertilizer: {
			advice:     "Apply 20:40:20 kg/ha NPK for pulses as recommended after a soil test. Inoculate seeds with Rhizobium for better nitrogen fixation.",
			urgency:    models.UrgencyMedium,
			confidence: 0.9,
			evidence: &models.Evidence{
				Source:  "pulses_fertilizer.pdf",
				Excerpt: "Apply 20:40:20 kg/ha NPK for pulses. Inoculate seeds with Rhizobium for better nitrogen fixation.",
				Date:    "2024-02-05", Geo: "Madhya Pradesh", Crop: "pulses",
			},
		},
	},
	"cotton": {
		practicePest: {
			advice:     "Cotton bollworm control: use Bt cotton or spray recommended insecticides at 5-7 day intervals as per label.",
			urgency:    models.UrgencyHigh,
			confidence: 0.85,
			evidence: &models.Evidence{
				Source:  "cotton_pest_guide.pdf",
				Excerpt: "Cotton bollworm control: Apply Bt cotton or spray recommended insecticides at 5-7 day intervals.",
				Date:    "2024-03-01", Geo: "Gujarat", Crop: "cotton",
			},
		},
	},
	"sugarcane": {
		practicePlanting: {
			advice:     "Sugarcane requires 12-18 months. Plant in February-March or September-October. Maintain soil moisture.",
			urgency:    models.UrgencyMedium,
			confidence: 0.8,
			evidence: &models.Evidence{
				Source:  "sugarcane_calendar.pdf",
				Excerpt: "Sugarcane requires 12-18 months. Plant in February-March or September-October. Maintain soil moisture.",
				Date:    "2024-01-20", Geo: "Maharashtra", Crop: "sugarcane",
			},
		},
	},
	"groundnut": {
		practicePlanting: {
			advice:     "Groundnut requires 90-120 days. Plant in June-July for kharif. Maintain proper spacing of 30x10 cm.",
			urgency:    models.UrgencyMedium,
			confidence: 0.8,
			evidence: &models.Evidence{
				Source:  "groundnut_guide.pdf",
				Excerpt: "Groundnut requires 90-120 days. Plant in June-July for kharif. Maintain proper spacing of 30x10 cm.",
				Date:    "2024-01-25", Geo: "Andhra Pradesh", Crop: "groundnut",
			},
		},
	},
}
