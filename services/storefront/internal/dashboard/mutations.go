package dashboard

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/adminclient"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/bookclient"
)

// Every mutation below changes local state only from the server's answer,
// and only after it succeeded. On failure the state is left as loaded and
// the error is returned.

func replaceByID[T any](items []T, id string, idOf func(T) string, echo T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := range out {
		if idOf(out[i]) == id {
			out[i] = echo
			return out
		}
	}
	return out
}

func removeByID[T any](items []T, id string, idOf func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}

func userID(u domain.User) string       { return u.ID }
func bookID(b domain.Book) string       { return b.ID }
func messageID(m domain.Message) string { return m.ID }

func (d *Dashboard) fail(err error) error {
	d.Problems = append([]string{apiclient.Message(err)}, apiclient.FieldMessages(err)...)
	return err
}

func (d *Dashboard) invalid(problems []string) error {
	d.Problems = problems
	return &FormError{Problems: problems}
}

// FormError is a back-office form rejected before any request.
type FormError struct {
	Problems []string
}

func (e *FormError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (d *Dashboard) CreateUser(ctx context.Context, api AdminService, in adminclient.NewUser) error {
	if problems := in.Validate(); len(problems) > 0 {
		return d.invalid(problems)
	}
	user, err := api.CreateUser(ctx, in)
	if err != nil {
		return d.fail(err)
	}
	d.Users.Data = append(append([]domain.User(nil), d.Users.Data...), user)
	d.Notice = "Utilisateur ajouté"
	return nil
}

func (d *Dashboard) UpdateUser(ctx context.Context, api AdminService, id string, patch adminclient.UserPatch) error {
	user, err := api.UpdateUser(ctx, id, patch)
	if err != nil {
		return d.fail(err)
	}
	d.Users.Data = replaceByID(d.Users.Data, id, userID, user)
	d.Notice = "Utilisateur mis à jour"
	return nil
}

func (d *Dashboard) DeleteUser(ctx context.Context, api AdminService, id string) error {
	if err := api.DeleteUser(ctx, id); err != nil {
		return d.fail(err)
	}
	d.Users.Data = removeByID(d.Users.Data, id, userID)
	d.Notice = "Utilisateur supprimé"
	return nil
}

func (d *Dashboard) ToggleUserStatus(ctx context.Context, api AdminService, id string) error {
	user, err := api.ToggleUserStatus(ctx, id)
	if err != nil {
		return d.fail(err)
	}
	d.Users.Data = replaceByID(d.Users.Data, id, userID, user)
	return nil
}

func (d *Dashboard) CreateBook(ctx context.Context, api AdminService, in bookclient.Input) error {
	if problems := in.Validate(true); len(problems) > 0 {
		return d.invalid(problems)
	}
	book, err := api.CreateBook(ctx, in)
	if err != nil {
		return d.fail(err)
	}
	d.Books.Data = append(append([]domain.Book(nil), d.Books.Data...), book)
	d.Notice = "Livre ajouté"
	return nil
}

func (d *Dashboard) UpdateBook(ctx context.Context, api AdminService, id string, in bookclient.Input) error {
	if problems := in.Validate(false); len(problems) > 0 {
		return d.invalid(problems)
	}
	book, err := api.UpdateBook(ctx, id, in)
	if err != nil {
		return d.fail(err)
	}
	d.Books.Data = replaceByID(d.Books.Data, id, bookID, book)
	d.Notice = "Livre mis à jour"
	return nil
}

func (d *Dashboard) DeleteBook(ctx context.Context, api AdminService, id string) error {
	if err := api.DeleteBook(ctx, id); err != nil {
		return d.fail(err)
	}
	d.Books.Data = removeByID(d.Books.Data, id, bookID)
	d.Notice = "Livre supprimé"
	return nil
}

func (d *Dashboard) ToggleBookStatus(ctx context.Context, api AdminService, id string) error {
	book, err := api.ToggleBookStatus(ctx, id)
	if err != nil {
		return d.fail(err)
	}
	d.Books.Data = replaceByID(d.Books.Data, id, bookID, book)
	return nil
}

// applyMessage adopts the echoed message. When the API answered without
// the entity, the list is fetched again rather than guessed.
func (d *Dashboard) applyMessage(ctx context.Context, api AdminService, id string, echo domain.Message) error {
	if echo.ID != "" {
		d.Messages.Data = replaceByID(d.Messages.Data, id, messageID, echo)
		return nil
	}
	msgs, err := api.Messages(ctx)
	if err != nil {
		d.Messages.Err = err
		return d.fail(err)
	}
	d.Messages = Panel[[]domain.Message]{Data: msgs}
	return nil
}

func (d *Dashboard) MarkRead(ctx context.Context, api AdminService, id string) error {
	echo, err := api.MarkRead(ctx, id)
	if err != nil {
		return d.fail(err)
	}
	return d.applyMessage(ctx, api, id, echo)
}

func (d *Dashboard) Reply(ctx context.Context, api AdminService, id, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return d.invalid([]string{"La réponse ne peut pas être vide"})
	}
	echo, err := api.Reply(ctx, id, content)
	if err != nil {
		return d.fail(err)
	}
	d.Notice = "Réponse envoyée"
	return d.applyMessage(ctx, api, id, echo)
}

func (d *Dashboard) ToggleRead(ctx context.Context, api AdminService, id string) error {
	echo, err := api.ToggleRead(ctx, id)
	if err != nil {
		return d.fail(err)
	}
	return d.applyMessage(ctx, api, id, echo)
}

func (d *Dashboard) SaveSettings(ctx context.Context, api AdminService, s domain.Settings) error {
	if err := s.Validate(); err != nil {
		return d.invalid([]string{err.Error()})
	}
	saved, err := api.SaveSettings(ctx, s)
	if err != nil {
		return d.fail(err)
	}
	d.Settings = Panel[domain.Settings]{Data: saved}
	d.Notice = "Paramètres mis à jour avec succès"
	return nil
}

// settingsFields are the form keys SettingsFromForm understands.
var settingsFields = map[string]bool{
	"siteName": true, "siteDescription": true, "contactEmail": true, "supportPhone": true,
	"telegramUsername": true, "whatsappNumber": true, "maintenanceMode": true,
	"allowRegistrations": true, "defaultUserRole": true, "maxUploadSize": true,
	"allowedFileTypes": true, "currency": true, "taxRate": true,
	"minPurchaseAmount": true, "maxPurchaseAmount": true,
	"sections.booksSection": true, "sections.contactSection": true, "sections.heroSection": true,
	"contacts.telegram": true, "contacts.whatsapp": true, "contacts.email": true,
}

// formControlKeys are posted by the page itself, not settings.
var formControlKeys = map[string]bool{"action": true}

// SettingsFromForm builds Settings from the settings form. Unknown keys
// are rejected. Checkboxes absent from the form are false.
func SettingsFromForm(values url.Values) (domain.Settings, error) {
	var problems []string
	for key := range values {
		if !settingsFields[key] && !formControlKeys[key] {
			problems = append(problems, "paramètre inconnu : "+key)
		}
	}
	if len(problems) > 0 {
		return domain.Settings{}, &FormError{Problems: problems}
	}

	s := domain.DefaultSettings()
	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }
	checked := func(key string) bool {
		v := get(key)
		return v == "on" || v == "true" || v == "1"
	}
	number := func(key string, dst *float64) {
		if v := get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				problems = append(problems, key+" doit être un nombre")
				return
			}
			*dst = f
		}
	}

	s.SiteName = get("siteName")
	s.SiteDescription = get("siteDescription")
	s.ContactEmail = get("contactEmail")
	s.SupportPhone = get("supportPhone")
	s.TelegramUsername = get("telegramUsername")
	s.WhatsappNumber = get("whatsappNumber")
	s.MaintenanceMode = checked("maintenanceMode")
	s.AllowRegistrations = checked("allowRegistrations")
	if role := get("defaultUserRole"); role != "" {
		s.DefaultUserRole = domain.UserRole(role)
	}
	if v := get("maxUploadSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, "maxUploadSize doit être un entier")
		}
		s.MaxUploadSizeMB = n
	}
	if v := get("allowedFileTypes"); v != "" {
		var types []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				types = append(types, t)
			}
		}
		s.AllowedFileTypes = types
	}
	if v := get("currency"); v != "" {
		s.Currency = strings.ToUpper(v)
	}
	number("taxRate", &s.TaxRate)
	number("minPurchaseAmount", &s.MinPurchaseAmount)
	number("maxPurchaseAmount", &s.MaxPurchaseAmount)
	s.Sections = domain.SectionToggles{
		Books:   checked("sections.booksSection"),
		Contact: checked("sections.contactSection"),
		Hero:    checked("sections.heroSection"),
	}
	s.Contacts = domain.ContactHandles{
		Telegram: get("contacts.telegram"),
		Whatsapp: get("contacts.whatsapp"),
		Email:    get("contacts.email"),
	}
	if len(problems) > 0 {
		return domain.Settings{}, &FormError{Problems: problems}
	}
	return s, nil
}
