package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"bookzone/internal/util"
	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/catalog"
	"bookzone/services/storefront/internal/checkout"
	"bookzone/services/storefront/internal/session"
)

//go:embed templates static
var assets embed.FS

type pages struct {
	byName map[string]*template.Template
}

var funcs = template.FuncMap{
	"money":       formatPrice,
	"date":        formatDate,
	"excerpt":     catalog.Excerpt,
	"countries":   checkout.Countries,
	"statusLabel": statusLabel,
	"roleLabel":   roleLabel,
	"join":        strings.Join,
	"pathEscape":  url.PathEscape,
}

// loadPages parses every page together with the shared layout.
func loadPages() (*pages, error) {
	names, err := fs.Glob(assets, "templates/*.html")
	if err != nil {
		return nil, err
	}
	p := &pages{byName: make(map[string]*template.Template)}
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(assets, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", base, err)
		}
		p.byName[strings.TrimSuffix(base, ".html")] = t
	}
	return p, nil
}

// view is the data every page receives.
type view struct {
	Title    string
	User     domain.User
	SignedIn bool
	Admin    bool
	Path     string
	Notice   string
	Error    string
	Problems []string
	Data     any
}

func (s *Server) newView(r *http.Request, title string, data any) view {
	user, ok := session.FromContext(r.Context()).CurrentUser()
	return view{
		Title:    title,
		User:     user,
		SignedIn: ok,
		Admin:    ok && user.IsAdmin(),
		Path:     r.URL.Path,
		Data:     data,
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, v view) {
	t, ok := s.pages.byName[page]
	if !ok {
		util.LoggerFromContext(r.Context()).Error("unknown page", "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		util.LoggerFromContext(r.Context()).Error("render page", "page", page, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	v := s.newView(r, title, nil)
	v.Error = message
	s.render(w, r, status, "error", v)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound, "Page introuvable", "La page demandée n'existe pas.")
}

func formatPrice(v float64) string {
	whole := int64(v)
	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(d)
	}
	if frac := v - float64(whole); frac > 0.005 {
		return fmt.Sprintf("%s,%02d FCFA", b.String(), int64(frac*100+0.5))
	}
	return b.String() + " FCFA"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

func statusLabel(status domain.PurchaseStatus) string {
	switch status {
	case domain.PurchaseCompleted:
		return "Payé"
	case domain.PurchaseFailed:
		return "Échoué"
	}
	return "En attente"
}

func roleLabel(role domain.UserRole) string {
	if role == domain.RoleAdmin {
		return "Administrateur"
	}
	return "Utilisateur"
}
