package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"bookzone/internal/ratelimit"
	"bookzone/internal/util"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/authclient"
	"bookzone/services/storefront/internal/session"
	"bookzone/services/storefront/internal/store"
)

// scope is the per-request binding of one browser: its token slot, the
// API connection using it, and the restored session.
type scope struct {
	slot    *store.Slot
	conn    *apiclient.Conn
	session *session.Session
	expired atomic.Bool
}

type scopeKey struct{}

func scopeFrom(r *http.Request) *scope {
	sc, _ := r.Context().Value(scopeKey{}).(*scope)
	return sc
}

// withSession resolves the browser slot from its signed cookie, binds the
// API client to it and restores the session before the handler runs.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sc := &scope{}
		s.bind(sc, store.NewSlot(s.tokens, s.slotID(w, r)))
		sc.session = session.New(ctx, authclient.NewClient(sc.conn), sc.slot)
		if sc.expired.Swap(false) {
			// A stale token was dropped during restore; the browser simply
			// continues logged out.
			s.audit(r, "storefront.session.restore", "expired")
			s.metrics.SessionEvent("expired")
		}
		ctx = session.NewContext(ctx, sc.session)
		ctx = context.WithValue(ctx, scopeKey{}, sc)
		if user, ok := sc.session.CurrentUser(); ok {
			ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", user.ID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bind points sc at slot and connects the API client to it.
func (s *Server) bind(sc *scope, slot *store.Slot) {
	sc.slot = slot
	sc.conn = s.api.With(slot, func(context.Context) {
		sc.expired.Store(true)
		if sc.session != nil {
			sc.session.Expire()
		}
	})
}

// slotID returns the slot named by a valid cookie, or issues a new one. A
// cookie past half its lifetime is signed again for the same slot.
func (s *Server) slotID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil {
		id, expires, err := s.cookies.Verify(c.Value)
		if err == nil {
			if s.cookies.Renew(expires) {
				if err := s.setSlotCookie(w, r, id); err != nil {
					util.LoggerFromContext(r.Context()).Warn("renew slot cookie", "err", err)
				}
			}
			return id
		}
		s.audit(r, "storefront.cookie.verify", "fail", "reason", err.Error())
	}
	id := util.NewID()
	if err := s.setSlotCookie(w, r, id); err != nil {
		util.LoggerFromContext(r.Context()).Error("sign slot cookie", "err", err)
	}
	return id
}

func (s *Server) setSlotCookie(w http.ResponseWriter, r *http.Request, id string) error {
	value, err := s.cookies.Sign(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.cookies.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure || util.IsHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// rotateSlot moves the token of the current browser to a fresh slot and
// cookie, and empties the old slot. Called once a user signs in, so a
// cookie known before sign-in never names an authenticated slot.
func (s *Server) rotateSlot(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	sc := scopeFrom(r)
	token, err := sc.slot.Token(ctx)
	if err != nil {
		return fmt.Errorf("read slot token: %w", err)
	}
	old := sc.slot
	fresh := store.NewSlot(s.tokens, util.NewID())
	if err := fresh.SetToken(ctx, token); err != nil {
		return fmt.Errorf("store rotated token: %w", err)
	}
	if err := old.ClearToken(ctx); err != nil {
		_ = fresh.ClearToken(ctx)
		return fmt.Errorf("clear previous slot: %w", err)
	}
	if err := s.setSlotCookie(w, r, fresh.ID()); err != nil {
		_ = fresh.ClearToken(ctx)
		return fmt.Errorf("sign rotated slot: %w", err)
	}
	s.bind(sc, fresh)
	return nil
}

// requireSession sends anonymous browsers to the login page. No API call
// is made beyond the session restore. When the restore itself failed the
// token is kept and onRestoreFailure answers instead; nil renders the
// error page.
func (s *Server) requireSession(onRestoreFailure http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if sess.Authenticated() {
				next.ServeHTTP(w, r)
				return
			}
			if err := sess.RestoreErr(); err != nil {
				if onRestoreFailure != nil {
					onRestoreFailure(w, r)
					return
				}
				s.renderRestoreFailure(w, r, err)
				return
			}
			s.audit(r, "storefront.authorize", "fail", "reason", "anonymous")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		})
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		user, ok := sess.CurrentUser()
		if !ok {
			if err := sess.RestoreErr(); err != nil {
				s.renderRestoreFailure(w, r, err)
				return
			}
			s.audit(r, "storefront.admin.authorize", "fail", "reason", "anonymous")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if !user.IsAdmin() {
			s.audit(r, "storefront.admin.authorize", "fail", "user_id", user.ID, "reason", "forbidden")
			s.renderError(w, r, http.StatusForbidden, "Accès refusé", "Cette page est réservée aux administrateurs.")
			return
		}
		s.audit(r, "storefront.admin.authorize", "success", "user_id", user.ID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) renderRestoreFailure(w http.ResponseWriter, r *http.Request, err error) {
	s.audit(r, "storefront.authorize", "fail", "reason", "restore_failed")
	s.renderError(w, r, http.StatusBadGateway, "Service indisponible", apiclient.Message(err))
}

// expired reports whether err (or an earlier call in this request) hit a
// 401, and if so finishes the request with a redirect to the login page.
func (s *Server) expired(w http.ResponseWriter, r *http.Request, err error) bool {
	sc := scopeFrom(r)
	if !errors.Is(err, apiclient.ErrUnauthorized) && (sc == nil || !sc.expired.Load()) {
		return false
	}
	if sc != nil {
		if clearErr := sc.slot.ClearToken(r.Context()); clearErr != nil {
			util.LoggerFromContext(r.Context()).Warn("clear expired slot", "err", clearErr)
		}
		sc.session.Expire()
	}
	s.audit(r, "storefront.session", "expired")
	s.metrics.SessionEvent("expired")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
	return true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate applies limiter per path and client IP. On refusal it renders
// the 429 page.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	s.renderError(w, r, http.StatusTooManyRequests, "Trop de tentatives", "Veuillez patienter une minute avant de réessayer.")
	return false
}
