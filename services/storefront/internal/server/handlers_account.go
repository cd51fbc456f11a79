package server

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bookzone/internal/util"
	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/authclient"
	"bookzone/services/storefront/internal/bookclient"
	"bookzone/services/storefront/internal/messageclient"
	"bookzone/services/storefront/internal/purchaseclient"
	"bookzone/services/storefront/internal/session"
)

type profilePage struct {
	Form authclient.ProfileInput
}

func profileForm(u domain.User) authclient.ProfileInput {
	return authclient.ProfileInput{FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := session.FromContext(r.Context()).CurrentUser()
	s.render(w, r, http.StatusOK, "profile", s.newView(r, "Mon profil", profilePage{Form: profileForm(user)}))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	in := authclient.ProfileInput{
		FirstName: strings.TrimSpace(r.PostForm.Get("firstName")),
		LastName:  strings.TrimSpace(r.PostForm.Get("lastName")),
		Email:     strings.TrimSpace(r.PostForm.Get("email")),
	}
	var problems []string
	if in.FirstName == "" {
		problems = append(problems, "Le prénom est requis")
	}
	if in.LastName == "" {
		problems = append(problems, "Le nom est requis")
	}
	if in.Email == "" {
		problems = append(problems, "L'email est requis")
	}
	v := s.newView(r, "Mon profil", profilePage{Form: in})
	if len(problems) > 0 {
		v.Problems = problems
		s.render(w, r, http.StatusUnprocessableEntity, "profile", v)
		return
	}

	user, err := session.FromContext(r.Context()).UpdateProfile(r.Context(), in)
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		v.Error = apiclient.Message(err)
		v.Problems = apiclient.FieldMessages(err)
		s.render(w, r, http.StatusUnprocessableEntity, "profile", v)
		return
	}
	v = s.newView(r, "Mon profil", profilePage{Form: profileForm(user)})
	v.Notice = "Profil mis à jour avec succès"
	s.render(w, r, http.StatusOK, "profile", v)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	sess := session.FromContext(r.Context())
	user, _ := sess.CurrentUser()
	v := s.newView(r, "Mon profil", profilePage{Form: profileForm(user)})

	current := r.PostForm.Get("currentPassword")
	next := r.PostForm.Get("newPassword")
	switch {
	case current == "" || next == "":
		v.Problems = []string{"Veuillez remplir tous les champs"}
	case next != r.PostForm.Get("confirmPassword"):
		v.Problems = []string{"Les mots de passe ne correspondent pas"}
	case len(next) < minPasswordLength:
		v.Problems = []string{"Le mot de passe doit contenir au moins 6 caractères"}
	}
	if len(v.Problems) > 0 {
		s.render(w, r, http.StatusUnprocessableEntity, "profile", v)
		return
	}

	err := sess.ChangePassword(r.Context(), current, next)
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		s.audit(r, "storefront.password.change", "fail", "user_id", user.ID)
		v.Error = apiclient.Message(err)
		s.render(w, r, http.StatusUnprocessableEntity, "profile", v)
		return
	}
	s.audit(r, "storefront.password.change", "success", "user_id", user.ID)
	v.Notice = "Mot de passe changé avec succès"
	s.render(w, r, http.StatusOK, "profile", v)
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := purchaseclient.NewClient(scopeFrom(r).conn).History(r.Context())
	if s.expired(w, r, err) {
		return
	}
	v := s.newView(r, "Mes achats", purchases)
	status := http.StatusOK
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("purchase history", "err", err)
		v.Error = apiclient.Message(err)
		status = http.StatusBadGateway
	}
	s.render(w, r, status, "purchases", v)
}

type messagesPage struct {
	Messages []domain.Message
	Form     messageclient.Input
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.renderMessages(w, r, http.StatusOK, messagesPage{}, "", nil)
}

// renderMessages lists the user's conversations under the compose form.
func (s *Server) renderMessages(w http.ResponseWriter, r *http.Request, status int, page messagesPage, notice string, problems []string) {
	messages, err := messageclient.NewClient(scopeFrom(r).conn).Mine(r.Context())
	if s.expired(w, r, err) {
		return
	}
	page.Messages = messages
	v := s.newView(r, "Mes messages", page)
	v.Notice = notice
	v.Problems = problems
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("list messages", "err", err)
		v.Error = apiclient.Message(err)
	}
	s.render(w, r, status, "messages", v)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	user, _ := session.FromContext(r.Context()).CurrentUser()
	in := messageclient.Input{
		From:    user.FullName(),
		Email:   user.Email,
		Subject: strings.TrimSpace(r.PostForm.Get("subject")),
		Content: strings.TrimSpace(r.PostForm.Get("content")),
	}
	if problems := in.Validate(); len(problems) > 0 {
		s.renderMessages(w, r, http.StatusUnprocessableEntity, messagesPage{Form: in}, "", problems)
		return
	}
	if _, err := messageclient.NewClient(scopeFrom(r).conn).Send(r.Context(), in); err != nil {
		if s.expired(w, r, err) {
			return
		}
		problems := append([]string{apiclient.Message(err)}, apiclient.FieldMessages(err)...)
		s.renderMessages(w, r, http.StatusUnprocessableEntity, messagesPage{Form: in}, "", problems)
		return
	}
	s.renderMessages(w, r, http.StatusOK, messagesPage{}, "Votre message a été envoyé avec succès", nil)
}

// handleDownload streams a purchased PDF, or sends the browser to the
// storage link the API returned.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dl, err := bookclient.NewClient(scopeFrom(r).conn).Download(r.Context(), id)
	if s.expired(w, r, err) {
		return
	}
	logger := util.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, bookclient.ErrNotPDF):
		logger.Warn("download payload rejected", "book_id", id)
		s.renderError(w, r, http.StatusBadGateway, "Téléchargement impossible", "Le fichier reçu n'est pas un PDF valide.")
		return
	case err != nil:
		s.renderAPIError(w, r, err)
		return
	}

	if dl.IsRedirect() {
		target, perr := url.Parse(dl.RedirectURL)
		if perr != nil || (target.Scheme != "http" && target.Scheme != "https") {
			logger.Warn("download link rejected", "book_id", id, "url", dl.RedirectURL)
			s.renderError(w, r, http.StatusBadGateway, "Téléchargement impossible", "Le lien de téléchargement est invalide.")
			return
		}
		http.Redirect(w, r, target.String(), http.StatusFound)
		return
	}

	filename := dl.Filename
	if filename == "" {
		filename = id + ".pdf"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Body)))
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := dl.WriteTo(w); err != nil {
		logger.Warn("download write", "book_id", id, "err", err)
		return
	}
	logger.Info("download served", "book_id", id, "pages", dl.Pages, "bytes", len(dl.Body))
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Requête invalide", "Le formulaire n'a pas pu être lu.")
		return false
	}
	return true
}
