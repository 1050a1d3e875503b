package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookingrelay/internal/core"
)

const (
	successPageText = "Payment received. Thank you for your reservation; a confirmation will follow by email."
	cancelPageText  = "Payment was cancelled. Your reservation has not been confirmed."
)

// RegisterPageRoutes mounts the checkout redirect pages.
func RegisterPageRoutes(r chi.Router) {
	r.Get("/success", HandleSuccess)
	r.Get("/cancel", HandleCancel)
}

// HandleSuccess is the checkout success_url target.
func HandleSuccess(w http.ResponseWriter, _ *http.Request) {
	core.Text(w, http.StatusOK, successPageText)
}

// HandleCancel is the checkout cancel_url target.
func HandleCancel(w http.ResponseWriter, _ *http.Request) {
	core.Text(w, http.StatusOK, cancelPageText)
}
