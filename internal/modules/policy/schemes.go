package policy

type category string

const (
	categoryCentral category = "central_government"
	categoryState   category = "state_government"
	categoryBanking category = "banking"
	categoryPrivate category = "private"
	categoryNGO     category = "ngo"
)

type Scheme struct {
	ID          string
	Name        string
	Category    category
	Objective   string
	Benefits    string
	Eligibility string
	HowToApply  []string
	Link        string
	Geo         string
}

var catalogue = []Scheme{
	{
		ID: "CENTRAL_PM-KISAN", Name: "PM-KISAN", Category: categoryCentral,
		Objective:   "Income support to landholding farmer families",
		Benefits:    "₹6000 per year in three instalments by direct benefit transfer",
		Eligibility: "Landholding farmer families with cultivable land in their name; institutional landholders and income tax payers are excluded",
		HowToApply:  []string{"Register on the PM-KISAN portal or at a Common Service Centre", "Link Aadhaar and bank account", "Complete e-KYC"},
		Link:        "https://pmkisan.gov.in", Geo: "India",
	},
	{
		ID: "CENTRAL_PMFBY", Name: "Pradhan Mantri Fasal Bima Yojana", Category: categoryCentral,
		Objective:   "Crop insurance against yield loss from natural calamities, pests and diseases",
		Benefits:    "Premium of 2% for kharif, 1.5% for rabi and 5% for commercial crops; balance paid by government",
		Eligibility: "All farmers including sharecroppers and tenants growing notified crops in notified areas",
		HowToApply:  []string{"Apply through your bank, CSC or the PMFBY portal before the seasonal cut-off date", "Submit land records and sowing certificate"},
		Link:        "https://pmfby.gov.in", Geo: "India",
	},
	{
		ID: "CENTRAL_KCC", Name: "Kisan Credit Card", Category: categoryCentral,
		Objective:   "Timely short term credit for cultivation and allied activities",
		Benefits:    "Crop loans up to ₹3 lakh at 7% interest with 3% prompt repayment incentive",
		Eligibility: "Owner cultivators, tenant farmers, sharecroppers and self help groups",
		HowToApply:  []string{"Apply at any commercial, regional rural or cooperative bank", "Submit identity proof and land records"},
		Link:        "https://www.myscheme.gov.in/schemes/kcc", Geo: "India",
	},
	{
		ID: "CENTRAL_PM-KMY", Name: "PM Kisan Maan Dhan Yojana", Category: categoryCentral,
		Objective:   "Old age pension for small and marginal farmers",
		Benefits:    "₹3000 monthly pension after age 60",
		Eligibility: "Small and marginal farmers aged 18-40 with up to 2 hectares of land",
		HowToApply:  []string{"Enrol at a Common Service Centre with Aadhaar and a savings bank account"},
		Link:        "https://maandhan.in", Geo: "India",
	},
	{
		ID: "BANK_SBI_AGRI_GOLD_LOAN", Name: "SBI Agri Gold Loan", Category: categoryBanking,
		Objective:   "Credit against gold ornaments for agricultural purposes",
		Benefits:    "Quick loans at concessional rates for crop production and allied activities",
		Eligibility: "Farmers with agricultural land records pledging gold ornaments",
		HowToApply:  []string{"Visit an SBI branch with land records and gold ornaments"},
		Link:        "https://sbi.co.in", Geo: "India",
	},
	{
		ID: "BANK_AXIS_TRACTOR_LOAN", Name: "Axis Bank Tractor Loan", Category: categoryBanking,
		Objective:   "Finance for purchasing tractors",
		Benefits:    "Loans for new tractors with flexible repayment aligned to harvest cycles",
		Eligibility: "Farmers owning at least 2 acres of agricultural land",
		HowToApply:  []string{"Apply at an Axis Bank branch with land documents and the dealer quotation"},
		Link:        "https://www.axisbank.com", Geo: "India",
	},
	{
		ID: "TN_SUGARCANE_INCENTIVE", Name: "Tamil Nadu Sugarcane Incentive", Category: categoryState,
		Objective:   "Additional incentive over the fair and remunerative price for sugarcane growers",
		Benefits:    "State incentive per tonne of cane supplied to sugar mills",
		Eligibility: "Sugarcane farmers in Tamil Nadu supplying registered mills",
		HowToApply:  []string{"Register with the sugar mill in your area"},
		Link:        "https://www.tn.gov.in", Geo: "TN",
	},
	{
		ID: "TN_ORGANIC_FARMING", Name: "Tamil Nadu Organic Farming Mission", Category: categoryState,
		Objective:   "Promote organic farming and certification",
		Benefits:    "Subsidy for organic inputs and certification costs",
		Eligibility: "Farmers in Tamil Nadu converting to organic practices",
		HowToApply:  []string{"Apply through the block agriculture office"},
		Link:        "https://www.tnagrisnet.tn.gov.in", Geo: "TN",
	},
	{
		ID: "TN_MECHANIZATION", Name: "Tamil Nadu Agricultural Mechanization", Category: categoryState,
		Objective:   "Subsidised farm machinery",
		Benefits:    "Subsidy of 40-50% on the cost of farm machinery",
		Eligibility: "Farmers in Tamil Nadu, with priority for small and marginal farmers",
		HowToApply:  []string{"Register on the Uzhavan app or at the agricultural engineering office"},
		Link:        "https://aed.tn.gov.in", Geo: "TN",
	},
	{
		ID: "PRIVATE_ITC_MAARS", Name: "ITC MAARS", Category: categoryPrivate,
		Objective:   "Digital advisory and market linkage through farmer producer organisations",
		Benefits:    "Crop advisory, input access and market linkage",
		Eligibility: "Farmers who are members of partner FPOs",
		HowToApply:  []string{"Join a partner FPO and install the ITC MAARS app"},
		Link:        "https://www.itcportal.com", Geo: "India",
	},
	{
		ID: "NGO_WOTR", Name: "WOTR Watershed Programme", Category: categoryNGO,
		Objective:   "Watershed development and farmer training",
		Benefits:    "Training in water budgeting and climate resilient agriculture",
		Eligibility: "Village communities in programme districts",
		HowToApply:  []string{"Contact the WOTR regional office"},
		Link:        "https://wotr.org", Geo: "India",
	},
}

var keywordSchemes = map[string][]string{
	"pm-kisan":          {"CENTRAL_PM-KISAN"},
	"pm kisan":          {"CENTRAL_PM-KISAN"},
	"pmkisan":           {"CENTRAL_PM-KISAN"},
	"pension":           {"CENTRAL_PM-KMY"},
	"insurance":         {"CENTRAL_PMFBY"},
	"crop insurance":    {"CENTRAL_PMFBY"},
	"pmfby":             {"CENTRAL_PMFBY"},
	"fasal bima":        {"CENTRAL_PMFBY"},
	"kisan credit card": {"CENTRAL_KCC"},
	"kcc":               {"CENTRAL_KCC"},
	"credit":            {"CENTRAL_KCC", "BANK_SBI_AGRI_GOLD_LOAN", "BANK_AXIS_TRACTOR_LOAN"},
	"loan":              {"CENTRAL_KCC", "BANK_SBI_AGRI_GOLD_LOAN", "BANK_AXIS_TRACTOR_LOAN"},
	"gold loan":         {"BANK_SBI_AGRI_GOLD_LOAN"},
	"tractor":           {"BANK_AXIS_TRACTOR_LOAN"},
	"sugarcane":         {"TN_SUGARCANE_INCENTIVE"},
	"organic":           {"TN_ORGANIC_FARMING"},
	"mechanization":     {"TN_MECHANIZATION"},
	"machinery":         {"TN_MECHANIZATION"},
	"subsidy":           {"TN_ORGANIC_FARMING", "TN_MECHANIZATION"},
	"itc":               {"PRIVATE_ITC_MAARS"},
	"training":          {"NGO_WOTR"},
	"watershed":         {"NGO_WOTR"},
}
