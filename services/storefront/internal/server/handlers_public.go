package server

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"bookzone/internal/util"
	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/authclient"
	"bookzone/services/storefront/internal/bookclient"
	"bookzone/services/storefront/internal/catalog"
	"bookzone/services/storefront/internal/messageclient"
	"bookzone/services/storefront/internal/session"
)

const (
	featuredCount       = 3
	minPasswordLength   = 6
	msgBooksUnavailable = "Impossible de charger les livres. Veuillez réessayer plus tard."
)

type bookCard struct {
	Book     domain.Book
	BuyURL   string
	Telegram string
	WhatsApp string
}

func cardsFor(books []domain.Book, signedIn bool) []bookCard {
	out := make([]bookCard, 0, len(books))
	for _, b := range books {
		card := bookCard{Book: b, BuyURL: catalog.PurchaseTarget(signedIn, b.ID)}
		if _, ok := catalog.TelegramLink(b); ok {
			card.Telegram = "/books/" + b.ID + "/contact/telegram"
		}
		if _, ok := catalog.WhatsAppLink(b); ok {
			card.WhatsApp = "/books/" + b.ID + "/contact/whatsapp"
		}
		out = append(out, card)
	}
	return out
}

func (s *Server) books(r *http.Request) *bookclient.Client {
	return bookclient.NewClient(scopeFrom(r).conn)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	v := s.newView(r, "Accueil", nil)
	books, err := s.books(r).List(r.Context())
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("home books", "err", err)
		v.Error = msgBooksUnavailable
	}
	v.Data = cardsFor(catalog.Featured(books, featuredCount), v.SignedIn)
	s.render(w, r, http.StatusOK, "home", v)
}

type booksPage struct {
	Query      catalog.Query
	Categories []string
	Cards      []bookCard
	Total      int
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	v := s.newView(r, "Catalogue", nil)
	q := catalog.QueryFromValues(r.URL.Query())
	listing, err := catalog.Load(r.Context(), s.books(r))
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("catalog load", "err", err)
		v.Error = apiclient.Message(err)
		v.Data = booksPage{Query: q}
		s.render(w, r, http.StatusBadGateway, "books", v)
		return
	}
	filtered := catalog.Apply(listing.Books, q)
	v.Data = booksPage{
		Query:      q,
		Categories: listing.Categories,
		Cards:      cardsFor(filtered, v.SignedIn),
		Total:      len(listing.Books),
	}
	s.render(w, r, http.StatusOK, "books", v)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.books(r).Get(r.Context(), chi.URLParam(r, "id"))
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		s.renderAPIError(w, r, err)
		return
	}
	v := s.newView(r, book.Title, nil)
	v.Data = cardsFor([]domain.Book{book}, v.SignedIn)[0]
	s.render(w, r, http.StatusOK, "book", v)
}

// handleContactSeller records the sale intent of a signed-in buyer, then
// sends the browser to the seller's chat with a prefilled message.
func (s *Server) handleContactSeller(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	books := s.books(r)
	book, err := books.Get(ctx, id)
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		s.renderAPIError(w, r, err)
		return
	}
	var link string
	var ok bool
	switch chi.URLParam(r, "channel") {
	case "telegram":
		link, ok = catalog.TelegramLink(book)
	case "whatsapp":
		link, ok = catalog.WhatsAppLink(book)
	}
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	if session.FromContext(ctx).Authenticated() {
		if err := books.RecordPurchase(ctx, id); err != nil {
			if s.expired(w, r, err) {
				return
			}
			util.LoggerFromContext(ctx).Warn("record purchase intent", "book_id", id, "err", err)
		}
	}
	http.Redirect(w, r, link, http.StatusFound)
}

type authForm struct {
	FirstName string
	LastName  string
	Email     string
	Next      string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if session.FromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", s.newView(r, "Connexion", authForm{Next: safeNext(r.URL.Query().Get("next"))}))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter) {
		s.audit(r, "storefront.login", "rate_limited")
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	form := authForm{Email: strings.TrimSpace(r.PostForm.Get("email")), Next: safeNext(r.PostForm.Get("next"))}
	password := r.PostForm.Get("password")
	v := s.newView(r, "Connexion", form)
	if form.Email == "" || password == "" {
		v.Error = "Veuillez saisir votre email et votre mot de passe"
		s.render(w, r, http.StatusUnprocessableEntity, "login", v)
		return
	}

	user, err := session.FromContext(r.Context()).Login(r.Context(), form.Email, password)
	if err != nil {
		s.audit(r, "storefront.login", "fail", "reason", err.Error())
		v.Error = apiclient.Message(err)
		v.Problems = apiclient.FieldMessages(err)
		s.render(w, r, http.StatusUnprocessableEntity, "login", v)
		return
	}
	if !s.secureSlot(w, r) {
		return
	}
	s.audit(r, "storefront.login", "success", "user_id", user.ID)
	s.metrics.SessionEvent("login")
	next := form.Next
	if next == "/" && user.IsAdmin() {
		next = "/admin"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if session.FromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "register", s.newView(r, "Inscription", authForm{}))
}

// registerProblems checks the form before any request is issued.
func registerProblems(form authForm, password, confirm string) []string {
	var problems []string
	if form.FirstName == "" {
		problems = append(problems, "Le prénom est requis")
	}
	if form.LastName == "" {
		problems = append(problems, "Le nom est requis")
	}
	if form.Email == "" {
		problems = append(problems, "L'email est requis")
	} else if _, err := mail.ParseAddress(form.Email); err != nil {
		problems = append(problems, "Email invalide")
	}
	switch {
	case password == "":
		problems = append(problems, "Le mot de passe est requis")
	case password != confirm:
		problems = append(problems, "Les mots de passe ne correspondent pas")
	case len(password) < minPasswordLength:
		problems = append(problems, "Le mot de passe doit contenir au moins 6 caractères")
	}
	return problems
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.registerLimiter) {
		s.audit(r, "storefront.register", "rate_limited")
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	form := authForm{
		FirstName: strings.TrimSpace(r.PostForm.Get("firstName")),
		LastName:  strings.TrimSpace(r.PostForm.Get("lastName")),
		Email:     strings.TrimSpace(r.PostForm.Get("email")),
	}
	password := r.PostForm.Get("password")
	v := s.newView(r, "Inscription", form)
	if problems := registerProblems(form, password, r.PostForm.Get("confirmPassword")); len(problems) > 0 {
		v.Problems = problems
		s.render(w, r, http.StatusUnprocessableEntity, "register", v)
		return
	}

	user, err := session.FromContext(r.Context()).Register(r.Context(), authclient.RegisterInput{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Email:     form.Email,
		Password:  password,
	})
	if err != nil {
		s.audit(r, "storefront.register", "fail", "reason", err.Error())
		v.Error = apiclient.Message(err)
		v.Problems = apiclient.FieldMessages(err)
		s.render(w, r, http.StatusUnprocessableEntity, "register", v)
		return
	}
	if !s.secureSlot(w, r) {
		return
	}
	s.audit(r, "storefront.register", "success", "user_id", user.ID)
	s.metrics.SessionEvent("register")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	user, _ := sess.CurrentUser()
	if err := sess.Logout(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Warn("logout clear slot", "err", err)
	}
	s.audit(r, "storefront.logout", "success", "user_id", user.ID)
	s.metrics.SessionEvent("logout")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type contactPage struct {
	Form messageclient.Input
	Sent bool
}

func (s *Server) handleContactPage(w http.ResponseWriter, r *http.Request) {
	var form messageclient.Input
	if user, ok := session.FromContext(r.Context()).CurrentUser(); ok {
		form.From = user.FullName()
		form.Email = user.Email
	}
	s.render(w, r, http.StatusOK, "contact", s.newView(r, "Contact", contactPage{Form: form}))
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	form := messageclient.Input{
		From:    strings.TrimSpace(r.PostForm.Get("from")),
		Email:   strings.TrimSpace(r.PostForm.Get("email")),
		Subject: strings.TrimSpace(r.PostForm.Get("subject")),
		Content: strings.TrimSpace(r.PostForm.Get("content")),
	}
	v := s.newView(r, "Contact", contactPage{Form: form})
	if problems := form.Validate(); len(problems) > 0 {
		v.Problems = problems
		s.render(w, r, http.StatusUnprocessableEntity, "contact", v)
		return
	}
	sent := form
	sent.Content = "Message de " + form.From + " (" + form.Email + "):\n\n" + form.Content
	if _, err := messageclient.NewClient(scopeFrom(r).conn).Send(r.Context(), sent); err != nil {
		if s.expired(w, r, err) {
			return
		}
		v.Error = apiclient.Message(err)
		v.Problems = apiclient.FieldMessages(err)
		s.render(w, r, http.StatusUnprocessableEntity, "contact", v)
		return
	}
	v.Data = contactPage{Sent: true}
	v.Notice = "Votre message a été envoyé avec succès"
	s.render(w, r, http.StatusOK, "contact", v)
}

// secureSlot moves a fresh sign-in to a new slot. When that fails the
// sign-in is undone and the error page rendered.
func (s *Server) secureSlot(w http.ResponseWriter, r *http.Request) bool {
	err := s.rotateSlot(w, r)
	if err == nil {
		return true
	}
	util.LoggerFromContext(r.Context()).Error("rotate slot", "err", err)
	if logoutErr := session.FromContext(r.Context()).Logout(r.Context()); logoutErr != nil {
		util.LoggerFromContext(r.Context()).Warn("logout after failed rotation", "err", logoutErr)
	}
	s.renderError(w, r, http.StatusInternalServerError, "Connexion impossible", "Veuillez réessayer dans quelques instants.")
	return false
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// renderAPIError renders a failed page load; 404 from the API becomes the
// not-found page.
func (s *Server) renderAPIError(w http.ResponseWriter, r *http.Request, err error) {
	if apiclient.IsNotFound(err) {
		s.handleNotFound(w, r)
		return
	}
	util.LoggerFromContext(r.Context()).Warn("api call failed", "err", err)
	s.renderError(w, r, http.StatusBadGateway, "Erreur", apiclient.Message(err))
}
