package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookzone/internal/util"
	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/bookclient"
	"bookzone/services/storefront/internal/checkout"
	"bookzone/services/storefront/internal/purchaseclient"
	"bookzone/services/storefront/internal/session"
)

type checkoutPage struct {
	Book      domain.Book
	Form      checkout.Form
	CanSubmit bool
}

// checkoutBook fetches the book summarised next to the form. It returns
// false once the response has been written.
func (s *Server) checkoutBook(w http.ResponseWriter, r *http.Request, id string) (domain.Book, bool) {
	book, err := bookclient.NewClient(scopeFrom(r).conn).Get(r.Context(), id)
	if s.expired(w, r, err) {
		return domain.Book{}, false
	}
	if err != nil {
		s.renderAPIError(w, r, err)
		return domain.Book{}, false
	}
	if !book.IsActive {
		s.handleNotFound(w, r)
		return domain.Book{}, false
	}
	return book, true
}

func (s *Server) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	book, ok := s.checkoutBook(w, r, chi.URLParam(r, "bookID"))
	if !ok {
		return
	}
	user, _ := session.FromContext(r.Context()).CurrentUser()
	page := checkoutPage{Book: book, Form: checkout.NewForm(user), CanSubmit: true}
	s.render(w, r, http.StatusOK, "checkout", s.newView(r, "Paiement", page))
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	bookID := chi.URLParam(r, "bookID")
	form := checkout.FormFromValues(r.PostForm)

	// Without JavaScript the country select posts the form back to reload
	// the region list.
	if r.PostForm.Get("action") == "change_country" {
		book, ok := s.checkoutBook(w, r, bookID)
		if !ok {
			return
		}
		page := checkoutPage{Book: book, Form: form, CanSubmit: true}
		s.render(w, r, http.StatusOK, "checkout", s.newView(r, "Paiement", page))
		return
	}

	if !s.allowRate(w, r, s.checkoutLimiter) {
		s.audit(r, "storefront.checkout", "rate_limited")
		return
	}

	sc := scopeFrom(r)
	wf := checkout.NewWorkflow(bookID, form, purchaseclient.NewClient(sc.conn)).Guard(s.inFlight, sc.slot.ID())
	err := wf.Submit(r.Context())
	if s.expired(w, r, err) {
		return
	}
	if err == nil && wf.State() == checkout.Redirecting {
		http.Redirect(w, r, wf.PaymentURL(), http.StatusSeeOther)
		return
	}

	status := http.StatusUnprocessableEntity
	var transport *apiclient.TransportError
	if errors.As(err, &transport) {
		status = http.StatusBadGateway
	}
	page := checkoutPage{Form: wf.Form(), CanSubmit: wf.CanSubmit()}
	book, err := bookclient.NewClient(sc.conn).Get(r.Context(), bookID)
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		// The posted form is shown again even when the summary is missing.
		util.LoggerFromContext(r.Context()).Warn("checkout book summary", "book_id", bookID, "err", err)
		book = domain.Book{ID: bookID}
	}
	page.Book = book
	v := s.newView(r, "Paiement", page)
	v.Error = wf.Message()
	s.render(w, r, status, "checkout", v)
}

// handleCheckoutUnreachable answers a checkout post whose session could not
// be restored because the API failed. The token is kept and the posted form
// is shown again with the error, so nothing typed is lost.
func (s *Server) handleCheckoutUnreachable(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	restoreErr := session.FromContext(r.Context()).RestoreErr()
	s.audit(r, "storefront.checkout", "fail", "reason", "restore_failed")
	page := checkoutPage{
		Book:      domain.Book{ID: chi.URLParam(r, "bookID")},
		Form:      checkout.FormFromValues(r.PostForm),
		CanSubmit: true,
	}
	v := s.newView(r, "Paiement", page)
	v.Error = apiclient.Message(restoreErr)
	s.render(w, r, http.StatusBadGateway, "checkout", v)
}

type paymentPage struct {
	Purchase domain.Purchase
	Verified bool
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	purchase, err := purchaseclient.NewClient(scopeFrom(r).conn).Get(r.Context(), chi.URLParam(r, "transactionID"))
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		s.renderAPIError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "payment", s.newView(r, "Statut du paiement", paymentPage{Purchase: purchase}))
}

// handleVerifyPayment asks the API to re-check the gateway, then shows the
// refreshed status.
func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transactionID")
	purchase, err := purchaseclient.NewClient(scopeFrom(r).conn).Verify(r.Context(), id)
	if s.expired(w, r, err) {
		return
	}
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("verify payment", "transaction_id", id, "err", err)
		s.renderAPIError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("payment verified", "transaction_id", id, "status", purchase.Status)
	v := s.newView(r, "Statut du paiement", paymentPage{Purchase: purchase, Verified: true})
	s.render(w, r, http.StatusOK, "payment", v)
}
