package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/adminclient"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/bookclient"
)

// AdminService is the back-office API.
type AdminService interface {
	Stats(ctx context.Context) (domain.Stats, error)
	Users(ctx context.Context) ([]domain.User, error)
	Books(ctx context.Context) ([]domain.Book, error)
	Messages(ctx context.Context) ([]domain.Message, error)
	Settings(ctx context.Context) (domain.Settings, error)

	CreateUser(ctx context.Context, in adminclient.NewUser) (domain.User, error)
	UpdateUser(ctx context.Context, id string, patch adminclient.UserPatch) (domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	ToggleUserStatus(ctx context.Context, id string) (domain.User, error)

	CreateBook(ctx context.Context, in bookclient.Input) (domain.Book, error)
	UpdateBook(ctx context.Context, id string, in bookclient.Input) (domain.Book, error)
	DeleteBook(ctx context.Context, id string) error
	ToggleBookStatus(ctx context.Context, id string) (domain.Book, error)

	MarkRead(ctx context.Context, id string) (domain.Message, error)
	Reply(ctx context.Context, id, content string) (domain.Message, error)
	ToggleRead(ctx context.Context, id string) (domain.Message, error)

	SaveSettings(ctx context.Context, s domain.Settings) (domain.Settings, error)
}

// Panel is one independently loaded part of the dashboard.
type Panel[T any] struct {
	Data T
	Err  error
}

// OK reports whether the panel loaded.
func (p Panel[T]) OK() bool {
	return p.Err == nil
}

// Message is the error to render in place of the panel.
func (p Panel[T]) Message() string {
	return apiclient.Message(p.Err)
}

// Dashboard is the back-office state for one page render.
type Dashboard struct {
	Stats    Panel[domain.Stats]
	Users    Panel[[]domain.User]
	Books    Panel[[]domain.Book]
	Messages Panel[[]domain.Message]
	Settings Panel[domain.Settings]

	// Notice and Problems report the outcome of the last mutation.
	Notice   string
	Problems []string
}

// Load issues the five panel requests concurrently. A failing request only
// marks its own panel.
func Load(ctx context.Context, api AdminService) *Dashboard {
	d := &Dashboard{}
	var g errgroup.Group
	g.Go(func() error {
		d.Stats.Data, d.Stats.Err = api.Stats(ctx)
		return nil
	})
	g.Go(func() error {
		d.Users.Data, d.Users.Err = api.Users(ctx)
		return nil
	})
	g.Go(func() error {
		d.Books.Data, d.Books.Err = api.Books(ctx)
		return nil
	})
	g.Go(func() error {
		d.Messages.Data, d.Messages.Err = api.Messages(ctx)
		return nil
	})
	g.Go(func() error {
		d.Settings.Data, d.Settings.Err = api.Settings(ctx)
		return nil
	})
	_ = g.Wait()
	for name, err := range d.errs() {
		slog.WarnContext(ctx, "dashboard panel failed", "panel", name, "err", err)
	}
	return d
}

func (d *Dashboard) errs() map[string]error {
	out := map[string]error{}
	for name, err := range map[string]error{
		"stats":    d.Stats.Err,
		"users":    d.Users.Err,
		"books":    d.Books.Err,
		"messages": d.Messages.Err,
		"settings": d.Settings.Err,
	} {
		if err != nil {
			out[name] = err
		}
	}
	return out
}

// Unauthorized reports whether any panel failed because the session
// expired.
func (d *Dashboard) Unauthorized() bool {
	for _, err := range d.errs() {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return true
		}
	}
	return false
}
