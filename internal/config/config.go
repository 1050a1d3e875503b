// Package config defines the configuration structure for the booking relay.
// Configuration is loaded once at process start and is immutable thereafter;
// components receive the sub-struct they need by pointer.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing Stripe secret key or an invalid value aborts startup.
package config

import "time"

// Stripe credential modes selected by STRIPE_MODE.
const (
	StripeModeTest = "test"
	StripeModeLive = "live"
)

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Stripe        StripeConfig
	Forward       ForwardConfig
	Checkout      CheckoutConfig
	Booking       BookingConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP listener and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// PublicBaseURL is the externally reachable origin of this relay (no
	// trailing slash). Used to derive the checkout redirect pages.
	PublicBaseURL  string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// StripeConfig holds payment provider credentials for both modes. Only the
// Active credentials are used after loading.
type StripeConfig struct {
	Mode string `envconfig:"STRIPE_MODE" default:"test" validate:"oneof=test live"`

	// Single-mode deployments set these directly; they take precedence over
	// the mode-specific variables below.
	SecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`

	TestSecretKey     SecretString `envconfig:"STRIPE_TEST_SECRET_KEY"`
	TestWebhookSecret SecretString `envconfig:"STRIPE_TEST_WEBHOOK_SECRET"`
	LiveSecretKey     SecretString `envconfig:"STRIPE_LIVE_SECRET_KEY"`
	LiveWebhookSecret SecretString `envconfig:"STRIPE_LIVE_WEBHOOK_SECRET"`

	APIBaseURL string        `envconfig:"STRIPE_API_BASE" default:"https://api.stripe.com" validate:"required,url"`
	Timeout    time.Duration `envconfig:"STRIPE_TIMEOUT" default:"10s" validate:"gt=0"`

	// Active is resolved by the loader from Mode; never read from the environment.
	Active StripeCredentials `ignored:"true"`
}

// StripeCredentials is the resolved key pair for the selected mode.
type StripeCredentials struct {
	Mode          string
	SecretKey     SecretString
	WebhookSecret SecretString
}

// ForwardConfig holds settings for the downstream ingestion call.
type ForwardConfig struct {
	// URL may be empty: the relay then runs in degraded mode and only logs.
	URL       string        `envconfig:"DOWNSTREAM_URL" validate:"omitempty,url"`
	Timeout   time.Duration `envconfig:"FORWARD_TIMEOUT" default:"10s" validate:"gt=0"`
	UserAgent string        `envconfig:"FORWARD_USER_AGENT" default:"BookingRelay/1.0"`
}

// CheckoutConfig holds hosted checkout session parameters.
type CheckoutConfig struct {
	Currency           string   `envconfig:"CHECKOUT_CURRENCY" default:"jpy" validate:"required,len=3,lowercase"`
	ProductName        string   `envconfig:"CHECKOUT_PRODUCT_NAME" default:"Reservation" validate:"required"`
	PaymentMethodTypes []string `envconfig:"CHECKOUT_PAYMENT_METHODS" default:"card,konbini" validate:"min=1,dive,required"`
	// SuccessURL and CancelURL default to PUBLIC_BASE_URL + /success and /cancel.
	SuccessURL              string `envconfig:"CHECKOUT_SUCCESS_URL" validate:"omitempty,url"`
	CancelURL               string `envconfig:"CHECKOUT_CANCEL_URL" validate:"omitempty,url"`
	KonbiniExpiresAfterDays int    `envconfig:"KONBINI_EXPIRES_AFTER_DAYS" default:"3" validate:"min=1,max=60"`
	// PayAtStoreMethod is the payment method type whose completed sessions are
	// still awaiting payment.
	PayAtStoreMethod string `envconfig:"PAY_AT_STORE_METHOD" default:"konbini" validate:"required"`
}

// BookingConfig holds the same-day reservation cutoff rule.
type BookingConfig struct {
	Timezone      string   `envconfig:"BOOKING_TIMEZONE" default:"Asia/Tokyo" validate:"required"`
	CutoffEnabled bool     `envconfig:"BOOKING_CUTOFF_ENABLED" default:"true"`
	CutoffTime    string   `envconfig:"BOOKING_CUTOFF_TIME" default:"12:00" validate:"required"`
	CheckinKeys   []string `envconfig:"BOOKING_CHECKIN_KEYS" default:"checkin,check_in,checkIn" validate:"min=1,dive,required"`

	// Resolved by the loader.
	Location     *time.Location `ignored:"true"`
	CutoffHour   int            `ignored:"true"`
	CutoffMinute int            `ignored:"true"`
}

// AWSConfig holds AWS settings used for SSM secret resolution and metrics.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-northeast-1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"BookingRelay"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
