// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC as the process timezone; the booking zone is explicit.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. If APP_ENV != "local", resolve *_SSM_PARAM variables via the
//     SecretProvider and inject the values into the environment.
//  4. Use envconfig to populate the Config struct.
//  5. Validate the struct using go-playground/validator.
//  6. Resolve derived values: active Stripe credentials, booking location and
//     cutoff, checkout redirect URLs.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
)

// ConfigError is the diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks an environment variable whose value is an SSM path.
// STRIPE_LIVE_SECRET_KEY_SSM_PARAM=/prod/relay/stripe/live_key resolves into
// STRIPE_LIVE_SECRET_KEY.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads, validates and resolves the relay configuration. The
// provider may be nil when APP_ENV is "local" or no *_SSM_PARAM variables are
// set.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv does not override variables that are already set.
	_ = godotenv.Load()

	appEnv, _ := deps.lookupEnv("APP_ENV")
	if appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := resolve(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolve fills the derived fields. Request handlers only ever read the
// results, never the raw mode selector.
func resolve(cfg *Config) error {
	creds, err := cfg.Stripe.resolveCredentials()
	if err != nil {
		return err
	}
	cfg.Stripe.Active = creds

	loc, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("BOOKING_TIMEZONE %q is not a valid IANA zone", cfg.Booking.Timezone),
			Err:     err,
		}
	}
	cfg.Booking.Location = loc

	hour, minute, err := parseClock(cfg.Booking.CutoffTime)
	if err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("BOOKING_CUTOFF_TIME %q must be HH:MM", cfg.Booking.CutoffTime),
			Err:     err,
		}
	}
	cfg.Booking.CutoffHour, cfg.Booking.CutoffMinute = hour, minute

	base := strings.TrimSuffix(cfg.Server.PublicBaseURL, "/")
	if cfg.Checkout.SuccessURL == "" {
		cfg.Checkout.SuccessURL = base + "/success"
	}
	if cfg.Checkout.CancelURL == "" {
		cfg.Checkout.CancelURL = base + "/cancel"
	}

	return nil
}

// resolveCredentials picks the key pair for the configured mode. The
// unsuffixed STRIPE_SECRET_KEY/STRIPE_WEBHOOK_SECRET win when set.
func (s StripeConfig) resolveCredentials() (StripeCredentials, error) {
	creds := StripeCredentials{Mode: s.Mode}

	switch s.Mode {
	case StripeModeLive:
		creds.SecretKey, creds.WebhookSecret = s.LiveSecretKey, s.LiveWebhookSecret
	default:
		creds.SecretKey, creds.WebhookSecret = s.TestSecretKey, s.TestWebhookSecret
	}
	if !s.SecretKey.IsZero() {
		creds.SecretKey = s.SecretKey
	}
	if !s.WebhookSecret.IsZero() {
		creds.WebhookSecret = s.WebhookSecret
	}

	prefix := "STRIPE_" + strings.ToUpper(s.Mode) + "_"
	if creds.SecretKey.IsZero() {
		return creds, &ConfigError{
			Type:    ErrMissingEnv,
			Message: fmt.Sprintf("no Stripe secret key for mode %q (set STRIPE_SECRET_KEY or %sSECRET_KEY)", s.Mode, prefix),
		}
	}
	if creds.WebhookSecret.IsZero() {
		return creds, &ConfigError{
			Type:    ErrMissingEnv,
			Message: fmt.Sprintf("no Stripe webhook secret for mode %q (set STRIPE_WEBHOOK_SECRET or %sWEBHOOK_SECRET)", s.Mode, prefix),
		}
	}

	return creds, nil
}

// parseClock parses a 24-hour "HH:MM" wall-clock time.
func parseClock(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// resolveSSMParams scans the environment for *_SSM_PARAM variables, fetches
// their values in one batch and sets the target variables. Targets that are
// already set are left alone (Env > SSM).
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	// Several targets may share one parameter path, e.g. a single key used
	// for both test and live mode.
	pathTargets := make(map[string][]string)
	var paths []string

	for _, entry := range deps.environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || value == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		if _, seen := pathTargets[value]; !seen {
			paths = append(paths, value)
		}
		pathTargets[value] = append(pathTargets[value], target)
	}

	if len(paths) == 0 {
		return nil
	}

	if provider == nil {
		targets := lo.FlatMap(paths, func(p string, _ int) []string { return pathTargets[p] })
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range paths {
		value, ok := resolved[p]
		if !ok {
			missing = append(missing, pathTargets[p]...)
			continue
		}
		for _, target := range pathTargets[p] {
			if err := deps.setEnv(target, value); err != nil {
				return &ConfigError{
					Type:    ErrSSMResolution,
					Message: fmt.Sprintf("failed to set resolved value for %s", target),
					Err:     err,
				}
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
