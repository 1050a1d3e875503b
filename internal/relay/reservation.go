package relay

import (
	"context"
	"log/slog"
	"net/url"

	"bookingrelay/internal/config"
	"bookingrelay/internal/external"
	"bookingrelay/internal/types"
)

// ReservationService turns reservation requests into hosted checkout sessions.
type ReservationService interface {
	// ParseJSON and ParseForm normalize the request body. Amount errors are
	// reported here, before any provider call.
	ParseJSON(body map[string]any) (*types.ReservationRequest, error)
	ParseForm(form url.Values) (*types.ReservationRequest, error)

	// CreateCheckout applies the cutoff rule and creates the session. The
	// request is expected to have passed struct validation.
	CreateCheckout(ctx context.Context, req *types.ReservationRequest) (*types.CheckoutSession, error)
}

// CheckoutSettings are the fixed parameters of every session created.
type CheckoutSettings struct {
	Currency                string
	ProductName             string
	PaymentMethodTypes      []string
	SuccessURL              string
	CancelURL               string
	KonbiniExpiresAfterDays int
}

// ReservationConfig groups the service's settings.
type ReservationConfig struct {
	Checkout CheckoutSettings
	Cutoff   CutoffRule
	Boundary Boundary
}

// NewReservationConfig builds a ReservationConfig from loaded configuration.
func NewReservationConfig(checkout config.CheckoutConfig, booking config.BookingConfig) ReservationConfig {
	return ReservationConfig{
		Checkout: CheckoutSettings{
			Currency:                checkout.Currency,
			ProductName:             checkout.ProductName,
			PaymentMethodTypes:      checkout.PaymentMethodTypes,
			SuccessURL:              checkout.SuccessURL,
			CancelURL:               checkout.CancelURL,
			KonbiniExpiresAfterDays: checkout.KonbiniExpiresAfterDays,
		},
		Cutoff: CutoffRule{
			Enabled:  booking.CutoffEnabled,
			Location: booking.Location,
			Hour:     booking.CutoffHour,
			Minute:   booking.CutoffMinute,
		},
		Boundary: Boundary{CheckinKeys: booking.CheckinKeys},
	}
}

type reservationImpl struct {
	creator external.CheckoutCreator
	cfg     ReservationConfig
	clock   types.Clock
	logger  *slog.Logger
}

var _ ReservationService = (*reservationImpl)(nil)

// NewReservationService creates a ReservationService.
func NewReservationService(creator external.CheckoutCreator, cfg ReservationConfig, clock types.Clock, logger *slog.Logger) *reservationImpl {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &reservationImpl{
		creator: creator,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}
}

func (s *reservationImpl) ParseJSON(body map[string]any) (*types.ReservationRequest, error) {
	return s.cfg.Boundary.FromJSON(body)
}

func (s *reservationImpl) ParseForm(form url.Values) (*types.ReservationRequest, error) {
	return s.cfg.Boundary.FromForm(form)
}

// CreateCheckout checks the cutoff, converts the amount and calls the provider.
func (s *reservationImpl) CreateCheckout(ctx context.Context, req *types.ReservationRequest) (*types.CheckoutSession, error) {
	if err := s.cfg.Cutoff.Check(s.clock.Now(), req.CheckinDate); err != nil {
		s.logger.InfoContext(ctx, "reservation rejected by cutoff",
			"checkin", req.CheckinDate,
		)
		return nil, err
	}

	settings := s.cfg.Checkout
	amountMinor, err := ToMinorUnits(req.Amount, settings.Currency)
	if err != nil {
		return nil, err
	}

	session, err := s.creator.CreateCheckoutSession(ctx, types.CheckoutRequest{
		AmountMinor:             amountMinor,
		Currency:                settings.Currency,
		ProductName:             settings.ProductName,
		Email:                   req.Email,
		Metadata:                copyMetadata(req.Metadata),
		PaymentMethodTypes:      settings.PaymentMethodTypes,
		SuccessURL:              settings.SuccessURL,
		CancelURL:               settings.CancelURL,
		KonbiniExpiresAfterDays: settings.KonbiniExpiresAfterDays,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "checkout session creation failed", "error", err)
		return nil, err
	}

	return session, nil
}
