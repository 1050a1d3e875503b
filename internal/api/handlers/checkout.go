package handlers

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookingrelay/internal/core"
	"bookingrelay/internal/relay"
	"bookingrelay/internal/types"
)

// maxFormBodySize matches the JSON body limit enforced by core.DecodeJSON.
const maxFormBodySize = 1 << 20

// CheckoutResponse is returned when a checkout session has been created.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// CheckoutHandler creates hosted checkout sessions for reservations.
type CheckoutHandler struct {
	service   relay.ReservationService
	validator *core.Validator
	logger    *slog.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(service relay.ReservationService, v *core.Validator, l *slog.Logger) *CheckoutHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CheckoutHandler{
		service:   service,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the checkout endpoint.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/create-checkout-session", h.Create)
}

// Create accepts a JSON or form-encoded reservation and responds with the
// hosted checkout URL. Invalid input is rejected before Stripe is called.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := h.parse(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.service.CreateCheckout(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session issued",
		"session_id", session.ID,
		"metadata_keys", len(req.Metadata),
	)
	core.JSON(w, r, http.StatusOK, CheckoutResponse{URL: session.URL})
}

// parse dispatches on Content-Type. Anything that is not a form is read as JSON.
func (h *CheckoutHandler) parse(w http.ResponseWriter, r *http.Request) (*types.ReservationRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseForm(); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidForm, "malformed form body", err)
		}
		return h.service.ParseForm(r.PostForm)

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseMultipartForm(maxFormBodySize); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidForm, "malformed form body", err)
		}
		return h.service.ParseForm(r.PostForm)

	default:
		var body map[string]any
		if err := core.DecodeJSON(w, r, &body); err != nil {
			return nil, err
		}
		if body == nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must be a JSON object", nil)
		}
		return h.service.ParseJSON(body)
	}
}
