package checkout

import (
	"net/url"
	"strings"

	"bookzone/pkg/domain"
)

const (
	DefaultCountry = "CI"
	DefaultRegion  = "AB"
	DefaultZipCode = "00000"
)

// requiredFields are checked in this order before any request.
var requiredFields = []struct {
	key   string
	label string
	get   func(domain.CustomerInfo) string
}{
	{"name", "prénom", func(c domain.CustomerInfo) string { return c.Name }},
	{"surname", "nom", func(c domain.CustomerInfo) string { return c.Surname }},
	{"phone_number", "téléphone", func(c domain.CustomerInfo) string { return c.PhoneNumber }},
	{"email", "email", func(c domain.CustomerInfo) string { return c.Email }},
	{"address", "adresse", func(c domain.CustomerInfo) string { return c.Address }},
	{"city", "ville", func(c domain.CustomerInfo) string { return c.City }},
}

// Form is the buyer block being edited.
type Form struct {
	domain.CustomerInfo
}

// NewForm returns a form pre-filled from the signed-in user.
func NewForm(user domain.User) Form {
	return Form{CustomerInfo: domain.CustomerInfo{
		Name:    user.FirstName,
		Surname: user.LastName,
		Email:   user.Email,
		Country: DefaultCountry,
		State:   DefaultRegion,
		ZipCode: DefaultZipCode,
	}}
}

// FormFromValues reads a posted checkout form. The form carries the
// country it was rendered for in "previous_country"; the posted country is
// applied on top of it through SetCountry.
func FormFromValues(values url.Values) Form {
	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }
	f := Form{CustomerInfo: domain.CustomerInfo{
		Name:        get("name"),
		Surname:     get("surname"),
		PhoneNumber: get("phone_number"),
		Email:       get("email"),
		Address:     get("address"),
		City:        get("city"),
		Country:     strings.ToUpper(get("previous_country")),
		State:       get("state"),
		ZipCode:     get("zip_code"),
	}}
	country := get("country")
	if country == "" {
		country = DefaultCountry
	}
	f.SetCountry(country)
	if f.ZipCode == "" {
		f.ZipCode = DefaultZipCode
	}
	return f
}

// SetCountry switches the country. With an enumerated region list the
// current region survives only if it is one of its codes. Without one the
// region becomes free text: text typed for a previous free-text country is
// kept, a code picked from a previous select is cleared.
func (f *Form) SetCountry(code string) {
	code = strings.ToUpper(strings.TrimSpace(code))
	_, hadSelect := regionsByCountry[f.Country]
	f.Country = code
	if _, ok := regionsByCountry[code]; ok {
		if !validRegion(code, f.State) {
			f.State = ""
		}
		return
	}
	if hadSelect {
		f.State = ""
		return
	}
	f.State = strings.TrimSpace(f.State)
}

// RegionIsFreeText reports whether the region is typed rather than selected.
func (f Form) RegionIsFreeText() bool {
	_, ok := regionsByCountry[f.Country]
	return !ok
}

// RegionOptions returns the region choices for the selected country.
func (f Form) RegionOptions() []Option {
	opts, _ := RegionOptions(f.Country)
	return opts
}

// Missing returns the keys of the required fields left empty.
func (f Form) Missing() []string {
	var missing []string
	for _, field := range requiredFields {
		if strings.TrimSpace(field.get(f.CustomerInfo)) == "" {
			missing = append(missing, field.key)
		}
	}
	return missing
}

// Validate returns a *ValidationError naming every missing field.
func (f Form) Validate() error {
	var problems []string
	missing := f.Missing()
	if len(missing) > 0 {
		labels := make([]string, 0, len(missing))
		for _, key := range missing {
			labels = append(labels, labelOf(key))
		}
		problems = append(problems, "Veuillez remplir tous les champs obligatoires : "+strings.Join(labels, ", "))
	}
	if f.Country != "" && !knownCountry(f.Country) {
		problems = append(problems, "Pays non pris en charge")
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Missing: missing, Problems: problems}
}

// Customer returns the payload forwarded to the payment gateway.
func (f Form) Customer() domain.CustomerInfo {
	return f.CustomerInfo
}

func labelOf(key string) string {
	for _, field := range requiredFields {
		if field.key == key {
			return field.label
		}
	}
	return key
}
