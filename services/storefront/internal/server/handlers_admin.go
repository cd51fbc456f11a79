package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/adminclient"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/bookclient"
	"bookzone/services/storefront/internal/dashboard"
)

// mutation changes the dashboard through the admin API.
type mutation func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	s.adminPage(w, r, nil)
}

// adminPage loads every panel, applies mutate to the loaded state and
// renders the back-office.
func (s *Server) adminPage(w http.ResponseWriter, r *http.Request, mutate mutation) {
	ctx := r.Context()
	api := adminclient.NewClient(scopeFrom(r).conn)
	d := dashboard.Load(ctx, api)
	if d.Unauthorized() {
		s.expired(w, r, apiclient.ErrUnauthorized)
		return
	}
	status := http.StatusOK
	if mutate != nil {
		err := mutate(ctx, d, api)
		if s.expired(w, r, err) {
			return
		}
		if err != nil {
			status = http.StatusUnprocessableEntity
			var formErr *dashboard.FormError
			if !errors.As(err, &formErr) {
				s.audit(r, "storefront.admin.mutation", "fail", "reason", err.Error())
			}
		} else {
			s.audit(r, "storefront.admin.mutation", "success")
		}
	}
	v := s.newView(r, "Administration", d)
	v.Notice = d.Notice
	v.Problems = d.Problems
	s.render(w, r, status, "admin", v)
}

func (s *Server) adminForm(w http.ResponseWriter, r *http.Request, mutate mutation) {
	if !s.parseForm(w, r) {
		return
	}
	s.adminPage(w, r, mutate)
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	s.adminForm(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		role := domain.UserRole(strings.TrimSpace(r.PostForm.Get("role")))
		if role == "" {
			role = domain.RoleUser
		}
		return d.CreateUser(ctx, api, adminclient.NewUser{
			FirstName: strings.TrimSpace(r.PostForm.Get("firstName")),
			LastName:  strings.TrimSpace(r.PostForm.Get("lastName")),
			Email:     strings.TrimSpace(r.PostForm.Get("email")),
			Password:  r.PostForm.Get("password"),
			Role:      role,
			IsActive:  checkbox(r, "isActive"),
		})
	})
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	s.adminForm(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		return d.UpdateUser(ctx, api, chi.URLParam(r, "id"), adminclient.UserPatch{
			FirstName: strings.TrimSpace(r.PostForm.Get("firstName")),
			LastName:  strings.TrimSpace(r.PostForm.Get("lastName")),
			Email:     strings.TrimSpace(r.PostForm.Get("email")),
			Role:      domain.UserRole(strings.TrimSpace(r.PostForm.Get("role"))),
		})
	})
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	s.adminPage(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		return d.DeleteUser(ctx, api, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleAdminToggleUser(w http.ResponseWriter, r *http.Request) {
	s.adminPage(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		return d.ToggleUserStatus(ctx, api, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleAdminCreateBook(w http.ResponseWriter, r *http.Request) {
	s.bookForm(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService, in bookclient.Input) error {
		return d.CreateBook(ctx, api, in)
	})
}

func (s *Server) handleAdminUpdateBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.bookForm(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService, in bookclient.Input) error {
		return d.UpdateBook(ctx, api, id, in)
	})
}

func (s *Server) handleAdminDeleteBook(w http.ResponseWriter, r *http.Request) {
	s.adminPage(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		return d.DeleteBook(ctx, api, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleAdminToggleBook(w http.ResponseWriter, r *http.Request) {
	s.adminPage(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		return d.ToggleBookStatus(ctx, api, chi.URLParam(r, "id"))
	})
}

// bookForm reads the multipart book form, including the optional cover
// and PDF uploads, and hands it to apply.
func (s *Server) bookForm(w http.ResponseWriter, r *http.Request, apply func(context.Context, *dashboard.Dashboard, dashboard.AdminService, bookclient.Input) error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderError(w, r, http.StatusRequestEntityTooLarge, "Fichier trop volumineux", "Les fichiers envoyés dépassent la taille autorisée.")
			return
		}
		s.renderError(w, r, http.StatusBadRequest, "Requête invalide", "Le formulaire n'a pas pu être lu.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := bookclient.Input{
		Title:            strings.TrimSpace(r.PostForm.Get("title")),
		Author:           strings.TrimSpace(r.PostForm.Get("author")),
		Category:         strings.TrimSpace(r.PostForm.Get("category")),
		Description:      r.PostForm.Get("description"),
		ShortDescription: r.PostForm.Get("shortDescription"),
		TelegramContact:  strings.TrimSpace(r.PostForm.Get("telegramContact")),
		WhatsappContact:  strings.TrimSpace(r.PostForm.Get("whatsappContact")),
		IsActive:         checkbox(r, "isActive"),
	}
	var priceErr error
	if v := strings.TrimSpace(r.PostForm.Get("price")); v != "" {
		in.Price, priceErr = strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	}
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	attach := func(field string) *apiclient.File {
		f, header, err := r.FormFile(field)
		if err != nil {
			return nil
		}
		closers = append(closers, f)
		return &apiclient.File{Filename: header.Filename, Body: f}
	}
	in.Cover = attach("coverImage")
	in.PDF = attach("pdfFile")

	s.adminPage(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		if priceErr != nil {
			d.Problems = []string{"Le prix doit être un nombre"}
			return &dashboard.FormError{Problems: d.Problems}
		}
		return apply(ctx, d, api, in)
	})
}

func (s *Server) handleAdminMarkRead(w http.ResponseWriter, r *http.Request) {
	s.adminPage(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		return d.MarkRead(ctx, api, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleAdminReply(w http.ResponseWriter, r *http.Request) {
	s.adminForm(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		return d.Reply(ctx, api, chi.URLParam(r, "id"), r.PostForm.Get("response"))
	})
}

func (s *Server) handleAdminToggleRead(w http.ResponseWriter, r *http.Request) {
	s.adminPage(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		return d.ToggleRead(ctx, api, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleAdminSettings(w http.ResponseWriter, r *http.Request) {
	s.adminForm(w, r, func(ctx context.Context, d *dashboard.Dashboard, api dashboard.AdminService) error {
		settings, err := dashboard.SettingsFromForm(r.PostForm)
		if err != nil {
			var formErr *dashboard.FormError
			if errors.As(err, &formErr) {
				d.Problems = formErr.Problems
			}
			return err
		}
		return d.SaveSettings(ctx, api, settings)
	})
}

func checkbox(r *http.Request, key string) bool {
	switch r.PostForm.Get(key) {
	case "on", "true", "1":
		return true
	}
	return false
}
