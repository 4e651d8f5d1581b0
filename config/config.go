package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cohouse-dinner/game-registration/api"
	"github.com/cohouse-dinner/game-registration/saga"
)

type LockBackend string

const (
	LOCK_BACKEND_LOCAL  LockBackend = "local"
	LOCK_BACKEND_DYNAMO LockBackend = "dynamo"
	LOCK_BACKEND_REDIS  LockBackend = "redis"
)

// Config is everything the server reads from its environment.
type Config struct {
	Environment    string   `env:"ENVIRONMENT" envDefault:"LOCAL"`
	Host           string   `env:"HOST" envDefault:"0.0.0.0"`
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// An empty table name keeps everything in memory.
	DynamoTableName string `env:"DYNAMO_TABLE_NAME"`
	DynamoEndpoint  string `env:"DYNAMO_ENDPOINT"`

	LockBackend LockBackend   `env:"LOCK_BACKEND" envDefault:"local"`
	RedisURL    string        `env:"REDIS_URL"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"60s"`

	// StripeSecretKey wins over StripeSecretKeyParam. With neither set the
	// local gateway is used.
	StripeSecretKeyParam string `env:"STRIPE_SECRET_KEY_PARAM"`
	StripeSecretKey      string `env:"STRIPE_SECRET_KEY"`

	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT" envDefault:"1s"`
	RetryMaxTries        uint          `env:"RETRY_MAX_TRIES" envDefault:"3"`
	RetryInitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"100ms"`
	RetryMaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL" envDefault:"2s"`
	SagaRetention        time.Duration `env:"SAGA_RETENTION" envDefault:"168h"`

	MailFrom      string `env:"MAIL_FROM" envDefault:"games@cohouse-dinner.local"`
	OperatorEmail string `env:"OPERATOR_EMAIL"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	environment, err := api.ParseEnvironment(c.Environment)
	if err != nil {
		errs = append(errs, err)
	}

	switch c.LockBackend {
	case LOCK_BACKEND_LOCAL:
		if environment == api.PROD {
			errs = append(errs, errors.New("LOCK_BACKEND local only works with a single instance, use dynamo or redis in PROD"))
		}
	case LOCK_BACKEND_DYNAMO:
		if c.DynamoTableName == "" {
			errs = append(errs, errors.New("LOCK_BACKEND dynamo requires DYNAMO_TABLE_NAME"))
		}
	case LOCK_BACKEND_REDIS:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("LOCK_BACKEND redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend))
	}

	if environment == api.PROD {
		if c.DynamoTableName == "" {
			errs = append(errs, errors.New("DYNAMO_TABLE_NAME is required in PROD"))
		}
		if c.StripeSecretKey == "" && c.StripeSecretKeyParam == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY or STRIPE_SECRET_KEY_PARAM is required in PROD"))
		}
		if len(c.AllowedOrigins) == 0 {
			errs = append(errs, errors.New("ALLOWED_ORIGINS is required in PROD"))
		}
	}

	if budget := c.CommandBudget(); c.LockTTL <= budget {
		errs = append(errs, fmt.Errorf("LOCK_TTL %s must be longer than a saga command can run (%s): RETRY_MAX_TRIES*(GATEWAY_TIMEOUT+RETRY_MAX_INTERVAL) + %d*STORE_TIMEOUT", c.LockTTL, budget, storeCallsPerCommand))
	}
	if c.RetryMaxTries == 0 {
		errs = append(errs, errors.New("RETRY_MAX_TRIES must be at least 1"))
	}

	return errors.Join(errs...)
}

// Env is only meaningful on a validated config.
func (c Config) Env() api.Environment {
	environment, _ := api.ParseEnvironment(c.Environment)
	return environment
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c Config) UsesStripe() bool {
	return c.StripeSecretKey != "" || c.StripeSecretKeyParam != ""
}

// storeCallsPerCommand is the most store round trips one saga command makes
// outside its gateway calls: load, three transitions, the registration write
// and the event read.
const storeCallsPerCommand = 6

// CommandBudget is the longest a saga command may hold its lock. Saga commands
// are cut off at this point, so the lock lease has to be longer.
func (c Config) CommandBudget() time.Duration {
	tries := time.Duration(c.RetryMaxTries)
	return tries*(c.GatewayTimeout+c.RetryMaxInterval) + storeCallsPerCommand*c.StoreTimeout
}

func (c Config) SagaConfig() saga.Config {
	return saga.Config{
		GatewayTimeout: c.GatewayTimeout,
		StoreTimeout:   c.StoreTimeout,
		MaxTries:       c.RetryMaxTries,
		InitialBackoff: c.RetryInitialInterval,
		MaxBackoff:     c.RetryMaxInterval,
		Retention:      c.SagaRetention,
		CommandTimeout: c.CommandBudget(),
	}
}
