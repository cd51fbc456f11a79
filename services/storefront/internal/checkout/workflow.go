package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/purchaseclient"
)

// State is a step of the checkout workflow.
type State int

const (
	FormEditing State = iota
	Submitting
	Redirecting
)

func (s State) String() string {
	switch s {
	case FormEditing:
		return "form_editing"
	case Submitting:
		return "submitting"
	case Redirecting:
		return "redirecting"
	}
	return "unknown"
}

// MsgSubmitInFlight is shown when a second submit arrives mid-flight.
const MsgSubmitInFlight = "Un paiement est déjà en cours de traitement"

// ErrSubmitInFlight is returned while a submission is already running.
var ErrSubmitInFlight = errors.New("checkout submission already in flight")

// ValidationError is a form rejected before any request was issued.
type ValidationError struct {
	Missing  []string
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "\n")
}

// Initiator starts a purchase with the payment gateway.
type Initiator interface {
	Initiate(ctx context.Context, bookID string, customer domain.CustomerInfo) (purchaseclient.Initiation, error)
}

// Workflow walks one checkout from the form to the gateway redirect.
type Workflow struct {
	initiator Initiator
	bookID    string
	guard     *InFlight
	key       string

	mu         sync.Mutex
	state      State
	form       Form
	message    string
	paymentURL string
}

// NewWorkflow starts in FormEditing with form.
func NewWorkflow(bookID string, form Form, initiator Initiator) *Workflow {
	return &Workflow{initiator: initiator, bookID: bookID, form: form, state: FormEditing}
}

// Guard makes submissions exclusive per key across workflows, typically
// the browser slot id.
func (w *Workflow) Guard(guard *InFlight, key string) *Workflow {
	w.guard = guard
	w.key = key
	return w
}

// Submit validates the form and hands it to the gateway. On success the
// workflow is Redirecting and PaymentURL is set; on any failure it is back
// in FormEditing with Message set and the form untouched.
func (w *Workflow) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.state == Submitting {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	if w.state == Redirecting {
		w.mu.Unlock()
		return nil
	}
	if err := w.form.Validate(); err != nil {
		w.message = err.Error()
		w.mu.Unlock()
		return err
	}
	if w.guard != nil && !w.guard.Acquire(w.key) {
		w.message = MsgSubmitInFlight
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	w.state = Submitting
	w.message = ""
	customer := w.form.Customer()
	w.mu.Unlock()

	initiation, err := w.initiator.Initiate(ctx, w.bookID, customer)
	if w.guard != nil {
		w.guard.Release(w.key)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = FormEditing
		w.message = apiclient.Message(err)
		slog.InfoContext(ctx, "checkout failed", "book_id", w.bookID, "err", err)
		return err
	}
	w.state = Redirecting
	w.paymentURL = initiation.PaymentURL
	slog.InfoContext(ctx, "checkout redirect", "book_id", w.bookID, "transaction_id", initiation.TransactionID)
	return nil
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Form returns the form as last edited.
func (w *Workflow) Form() Form {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form
}

// Message is the error shown next to the form, verbatim from the server
// when the API rejected the purchase.
func (w *Workflow) Message() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.message
}

func (w *Workflow) PaymentURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paymentURL
}

// CanSubmit reports whether the submit button is enabled.
func (w *Workflow) CanSubmit() bool {
	return w.State() == FormEditing
}

// InFlight tracks keys with a submission running.
type InFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{keys: make(map[string]struct{})}
}

// Acquire marks key busy; it reports false when key already is.
func (g *InFlight) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.keys[key]; busy {
		return false
	}
	g.keys[key] = struct{}{}
	return true
}

func (g *InFlight) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
}
