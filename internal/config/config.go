package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	DatabaseURL string `env:"DATABASE_URL" envDefault:"donations.db"`

	Stripe   Stripe   `envPrefix:"STRIPE_"`
	Donation Donation `envPrefix:"DONATION_"`
}

type Stripe struct {
	SecretKey      string `env:"SECRET_KEY,required,notEmpty"`
	WebhookSecret  string `env:"WEBHOOK_SECRET,required,notEmpty"`
	PublishableKey string `env:"PUBLISHABLE_KEY,required,notEmpty"`

	// MonthlyPriceID is a pre-provisioned recurring unit price. When set,
	// monthly donations subscribe to it with quantity = amount / MonthlyUnitAmount
	// instead of creating a price per donation.
	MonthlyPriceID    string `env:"MONTHLY_PRICE_ID"`
	MonthlyUnitAmount int64  `env:"MONTHLY_UNIT_AMOUNT" envDefault:"100"`

	// CallTimeout bounds one attempt. Transient failures are retried up to
	// MaxRetries times with jittered exponential backoff from RetryBackoff.
	CallTimeout  time.Duration `env:"CALL_TIMEOUT" envDefault:"15s"`
	MaxRetries   int64         `env:"MAX_RETRIES" envDefault:"2"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"500ms"`

	// APIURL overrides the Stripe API base, used against stripe-mock.
	APIURL string `env:"API_URL"`
}

// Donation bounds are in major currency units.
type Donation struct {
	MinAmount int64  `env:"MIN_AMOUNT" envDefault:"1"`
	MaxAmount int64  `env:"MAX_AMOUNT" envDefault:"200000"`
	Currency  string `env:"CURRENCY" envDefault:"usd"`
	Purpose   string `env:"PURPOSE" envDefault:"zentrust_stewardship"`

	// ReservationTTL must outlast the slowest create-intent: three provider
	// calls, each with its retries.
	ReservationTTL time.Duration `env:"RESERVATION_TTL" envDefault:"5m"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host             string   `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port             string   `env:"HTTP_PORT" envDefault:"8080"`
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimit        float64  `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
}

func (h HTTPServer) Addr() string {
	return h.Host + ":" + h.Port
}

// Validate checks the cross-field rules env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Donation.MinAmount <= 0 {
		errs = append(errs, fmt.Errorf("DONATION_MIN_AMOUNT must be positive, got %d", c.Donation.MinAmount))
	}
	if c.Donation.MaxAmount < c.Donation.MinAmount {
		errs = append(errs, fmt.Errorf("DONATION_MAX_AMOUNT (%d) must not be below DONATION_MIN_AMOUNT (%d)",
			c.Donation.MaxAmount, c.Donation.MinAmount))
	}
	if len(c.Donation.Currency) != 3 {
		errs = append(errs, fmt.Errorf("DONATION_CURRENCY must be a 3-letter ISO code, got %q", c.Donation.Currency))
	}
	if c.Donation.ReservationTTL <= 0 {
		errs = append(errs, fmt.Errorf("DONATION_RESERVATION_TTL must be positive, got %s", c.Donation.ReservationTTL))
	}
	if c.Stripe.MonthlyUnitAmount <= 0 {
		errs = append(errs, fmt.Errorf("STRIPE_MONTHLY_UNIT_AMOUNT must be positive, got %d", c.Stripe.MonthlyUnitAmount))
	}
	if c.Stripe.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STRIPE_CALL_TIMEOUT must be positive, got %s", c.Stripe.CallTimeout))
	}
	if c.Stripe.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("STRIPE_RETRY_BACKOFF must not be negative, got %s", c.Stripe.RetryBackoff))
	}
	if c.Stripe.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("STRIPE_MAX_RETRIES must not be negative, got %d", c.Stripe.MaxRetries))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
