package server

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookzone/internal/ratelimit"
	"bookzone/internal/util"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/checkout"
	"bookzone/services/storefront/internal/metrics"
	"bookzone/services/storefront/internal/store"
)

const (
	defaultMaxUploadBytes = 50 << 20
	maxFormBytes          = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	API          *apiclient.Client
	Tokens       store.Backend
	Cookies      *store.CookieSigner
	CookieName   string
	CookieSecure bool
	Metrics      *metrics.Metrics

	LoginLimiter    ratelimit.Limiter
	RegisterLimiter ratelimit.Limiter
	CheckoutLimiter ratelimit.Limiter

	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
}

// Server renders the storefront pages.
type Server struct {
	api          *apiclient.Client
	tokens       store.Backend
	cookies      *store.CookieSigner
	cookieName   string
	cookieSecure bool
	metrics      *metrics.Metrics

	loginLimiter    ratelimit.Limiter
	registerLimiter ratelimit.Limiter
	checkoutLimiter ratelimit.Limiter

	trusted        *util.TrustedProxies
	maxUploadBytes int64
	inFlight       *checkout.InFlight
	pages          *pages
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.API == nil:
		return nil, errors.New("server: api client is required")
	case cfg.Tokens == nil:
		return nil, errors.New("server: token backend is required")
	case cfg.Cookies == nil:
		return nil, errors.New("server: cookie signer is required")
	case cfg.LoginLimiter == nil || cfg.RegisterLimiter == nil || cfg.CheckoutLimiter == nil:
		return nil, errors.New("server: rate limiters are required")
	}
	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "bookzone_slot"
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	s := &Server{
		api:             cfg.API,
		tokens:          cfg.Tokens,
		cookies:         cfg.Cookies,
		cookieName:      cookieName,
		cookieSecure:    cfg.CookieSecure,
		metrics:         m,
		loginLimiter:    cfg.LoginLimiter,
		registerLimiter: cfg.RegisterLimiter,
		checkoutLimiter: cfg.CheckoutLimiter,
		trusted:         cfg.TrustedProxies,
		maxUploadBytes:  maxUpload,
		inFlight:        checkout.NewInFlight(),
		pages:           p,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("storefront", s.trusted, util.WithSecurityHeaders(s.router)))
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(s.metrics.Instrument)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	static, _ := fs.Sub(assets, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Group(func(r chi.Router) {
		r.Use(s.withSession)

		r.Get("/", s.handleHome)
		r.Get("/books", s.handleBooks)
		r.Get("/books/{id}", s.handleBook)
		r.Get("/books/{id}/contact/{channel}", s.handleContactSeller)
		r.Get("/login", s.handleLoginPage)
		r.Post("/login", s.handleLogin)
		r.Get("/register", s.handleRegisterPage)
		r.Post("/register", s.handleRegister)
		r.Post("/logout", s.handleLogout)
		r.Get("/contact", s.handleContactPage)
		r.Post("/contact", s.handleContact)

		r.With(s.requireSession(s.handleCheckoutUnreachable)).Post("/checkout/{bookID}", s.handleCheckout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession(nil))
			r.Get("/profile", s.handleProfile)
			r.Post("/profile", s.handleUpdateProfile)
			r.Post("/profile/password", s.handleChangePassword)
			r.Get("/purchases", s.handlePurchases)
			r.Get("/messages", s.handleMessages)
			r.Post("/messages", s.handleSendMessage)
			r.Get("/checkout/{bookID}", s.handleCheckoutPage)
			r.Get("/payments/{transactionID}", s.handlePayment)
			r.Post("/payments/{transactionID}/verify", s.handleVerifyPayment)
			r.Get("/books/{id}/download", s.handleDownload)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/admin", s.handleAdmin)
			r.Post("/admin/users", s.handleAdminCreateUser)
			r.Post("/admin/users/{id}", s.handleAdminUpdateUser)
			r.Post("/admin/users/{id}/delete", s.handleAdminDeleteUser)
			r.Post("/admin/users/{id}/toggle", s.handleAdminToggleUser)
			r.Post("/admin/books", s.handleAdminCreateBook)
			r.Post("/admin/books/{id}", s.handleAdminUpdateBook)
			r.Post("/admin/books/{id}/delete", s.handleAdminDeleteBook)
			r.Post("/admin/books/{id}/toggle", s.handleAdminToggleBook)
			r.Post("/admin/messages/{id}/read", s.handleAdminMarkRead)
			r.Post("/admin/messages/{id}/reply", s.handleAdminReply)
			r.Post("/admin/messages/{id}/toggle", s.handleAdminToggleRead)
			r.Post("/admin/settings", s.handleAdminSettings)
		})

		r.NotFound(s.handleNotFound)
	})
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
