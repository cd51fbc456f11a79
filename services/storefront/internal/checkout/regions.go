package checkout

// Option is one entry of a country or region select.
type Option struct {
	Code string
	Name string
}

// countries are the ones the payment gateway accepts.
var countries = []Option{
	{"CI", "Côte d'Ivoire"},
	{"TG", "Togo"},
	{"SN", "Sénégal"},
	{"CM", "Cameroun"},
	{"ML", "Mali"},
	{"BF", "Burkina Faso"},
	{"NE", "Niger"},
	{"BJ", "Bénin"},
	{"GN", "Guinée"},
	{"GA", "Gabon"},
	{"CD", "RD Congo"},
	{"GW", "Guinée-Bissau"},
	{"CF", "Centrafrique"},
	{"TD", "Tchad"},
}

var regionsByCountry = map[string][]Option{
	"CI": {
		{"AB", "Abidjan"},
		{"BS", "Bas-Sassandra"},
		{"CM", "Comoé"},
		{"DN", "Denguélé"},
		{"GB", "Gôh-Bassam"},
		{"LC", "Lacs"},
		{"LG", "Lagunes"},
		{"SM", "Sassandra-Marahoué"},
		{"SV", "Savanes"},
		{"WR", "Woroba"},
		{"YM", "Yamoussoukro"},
	},
	"SN": {
		{"DK", "Dakar"},
		{"DB", "Diourbel"},
		{"FK", "Fatick"},
		{"KL", "Kaolack"},
		{"KD", "Kolda"},
		{"LG", "Louga"},
		{"MT", "Matam"},
		{"SL", "Saint-Louis"},
		{"TC", "Tambacounda"},
		{"TH", "Thiès"},
		{"ZG", "Ziguinchor"},
	},
	"TG": {
		{"C", "Centrale"},
		{"K", "Kara"},
		{"M", "Maritime"},
		{"P", "Plateaux"},
		{"S", "Savanes"},
	},
	"BF": {
		{"01", "Boucle du Mouhoun"},
		{"02", "Cascades"},
		{"03", "Centre"},
		{"04", "Centre-Est"},
		{"05", "Centre-Nord"},
		{"06", "Centre-Ouest"},
		{"07", "Centre-Sud"},
		{"08", "Est"},
		{"09", "Hauts-Bassins"},
		{"10", "Nord"},
		{"11", "Plateau-Central"},
		{"12", "Sahel"},
		{"13", "Sud-Ouest"},
	},
}

// Countries returns the selectable countries.
func Countries() []Option {
	out := make([]Option, len(countries))
	copy(out, countries)
	return out
}

// RegionOptions returns the region list of a country. ok is false when the
// country has no enumeration and the region is typed as free text.
func RegionOptions(country string) (options []Option, ok bool) {
	regions, ok := regionsByCountry[country]
	if !ok {
		return nil, false
	}
	out := make([]Option, len(regions))
	copy(out, regions)
	return out, true
}

func knownCountry(code string) bool {
	for _, c := range countries {
		if c.Code == code {
			return true
		}
	}
	return false
}

func validRegion(country, region string) bool {
	for _, r := range regionsByCountry[country] {
		if r.Code == region {
			return true
		}
	}
	return false
}
