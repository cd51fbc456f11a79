package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type SectionToggles struct {
	Books   bool `json:"booksSection"`
	Contact bool `json:"contactSection"`
	Hero    bool `json:"heroSection"`
}

type ContactHandles struct {
	Telegram string `json:"telegram"`
	Whatsapp string `json:"whatsapp"`
	Email    string `json:"email"`
}

// Settings enumerates every site option the back-office can edit.
type Settings struct {
	SiteName           string         `json:"siteName"`
	SiteDescription    string         `json:"siteDescription"`
	ContactEmail       string         `json:"contactEmail"`
	SupportPhone       string         `json:"supportPhone"`
	TelegramUsername   string         `json:"telegramUsername"`
	WhatsappNumber     string         `json:"whatsappNumber"`
	MaintenanceMode    bool           `json:"maintenanceMode"`
	AllowRegistrations bool           `json:"allowRegistrations"`
	DefaultUserRole    UserRole       `json:"defaultUserRole"`
	MaxUploadSizeMB    int            `json:"maxUploadSize"`
	AllowedFileTypes   []string       `json:"allowedFileTypes"`
	Currency           string         `json:"currency"`
	TaxRate            float64        `json:"taxRate"`
	MinPurchaseAmount  float64        `json:"minPurchaseAmount"`
	MaxPurchaseAmount  float64        `json:"maxPurchaseAmount"`
	Sections           SectionToggles `json:"sections"`
	Contacts           ContactHandles `json:"contacts"`
}

func DefaultSettings() Settings {
	return Settings{
		SiteName:           "DavyBookZone",
		SiteDescription:    "Votre librairie en ligne",
		ContactEmail:       "contact@davybookzone.com",
		SupportPhone:       "+1234567890",
		TelegramUsername:   "@davybookzone",
		WhatsappNumber:     "+1234567890",
		AllowRegistrations: true,
		DefaultUserRole:    RoleUser,
		MaxUploadSizeMB:    10,
		AllowedFileTypes:   []string{"pdf", "epub", "mobi"},
		Currency:           "XOF",
		TaxRate:            0,
		MinPurchaseAmount:  5,
		MaxPurchaseAmount:  1000000,
		Sections:           SectionToggles{Books: true, Contact: true, Hero: true},
		Contacts: ContactHandles{
			Telegram: "@davybookzone",
			Whatsapp: "+1234567890",
			Email:    "contact@davybookzone.com",
		},
	}
}

// DecodeSettings reads a settings document on top of the defaults.
// Keys that Settings does not declare are rejected.
func DecodeSettings(r io.Reader) (Settings, error) {
	out := DefaultSettings()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

// DecodeSettingsJSON is DecodeSettings over a byte slice; a null or empty
// document yields the defaults.
func DecodeSettingsJSON(data []byte) (Settings, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return DefaultSettings(), nil
	}
	return DecodeSettings(bytes.NewReader(data))
}

func (s Settings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.SiteName) == "" {
		problems = append(problems, "siteName is required")
	}
	if s.DefaultUserRole != RoleUser && s.DefaultUserRole != RoleAdmin {
		problems = append(problems, "defaultUserRole must be user or admin")
	}
	if s.MaxUploadSizeMB <= 0 {
		problems = append(problems, "maxUploadSize must be > 0")
	}
	if s.TaxRate < 0 || s.TaxRate > 100 {
		problems = append(problems, "taxRate must be between 0 and 100")
	}
	if s.MinPurchaseAmount < 0 {
		problems = append(problems, "minPurchaseAmount must be >= 0")
	}
	if s.MaxPurchaseAmount < s.MinPurchaseAmount {
		problems = append(problems, "maxPurchaseAmount must be >= minPurchaseAmount")
	}
	if len(problems) > 0 {
		return errors.New("invalid settings: " + strings.Join(problems, "; "))
	}
	return nil
}
