package config

import (
	"testing"
	"time"

	"github.com/cohouse-dinner/game-registration/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults run everything locally", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, api.LOCAL, cfg.Env())
		assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
		assert.Equal(t, LOCK_BACKEND_LOCAL, cfg.LockBackend)
		assert.Empty(t, cfg.DynamoTableName)
		assert.False(t, cfg.UsesStripe())
		assert.Equal(t, 60*time.Second, cfg.LockTTL)
		assert.Equal(t, 7*24*time.Hour, cfg.SagaRetention)
		assert.Equal(t, 42*time.Second, cfg.CommandBudget())
		assert.Equal(t, cfg.CommandBudget(), cfg.SagaConfig().CommandTimeout)
	})

	t.Run("reads a production setup", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "PROD")
		t.Setenv("PORT", "3000")
		t.Setenv("ALLOWED_ORIGINS", "https://games.example.com,https://admin.example.com")
		t.Setenv("DYNAMO_TABLE_NAME", "GameRegistration")
		t.Setenv("LOCK_BACKEND", "redis")
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")
		t.Setenv("STRIPE_SECRET_KEY_PARAM", "/games/stripe-key")
		t.Setenv("GATEWAY_TIMEOUT", "5s")
		t.Setenv("RETRY_MAX_TRIES", "5")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, api.PROD, cfg.Env())
		assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
		assert.Equal(t, []string{"https://games.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
		assert.Equal(t, LOCK_BACKEND_REDIS, cfg.LockBackend)
		assert.True(t, cfg.UsesStripe())

		sagaCfg := cfg.SagaConfig()
		assert.Equal(t, 5*time.Second, sagaCfg.GatewayTimeout)
		assert.Equal(t, uint(5), sagaCfg.MaxTries)
		assert.Equal(t, 100*time.Millisecond, sagaCfg.InitialBackoff)
	})

	t.Run("a lease shorter than a command is rejected", func(t *testing.T) {
		t.Setenv("LOCK_TTL", "30s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LOCK_TTL 30s must be longer than a saga command can run (42s)")
	})

	t.Run("malformed durations fail to parse", func(t *testing.T) {
		t.Setenv("LOCK_TTL", "soon")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Environment:          "LOCAL",
			LockBackend:          LOCK_BACKEND_LOCAL,
			LockTTL:              60 * time.Second,
			GatewayTimeout:       10 * time.Second,
			StoreTimeout:         time.Second,
			RetryMaxTries:        3,
			RetryInitialInterval: 100 * time.Millisecond,
			RetryMaxInterval:     2 * time.Second,
			DynamoTableName:      "GameRegistration",
		}
	}

	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{
			name:   "unknown environment",
			modify: func(c *Config) { c.Environment = "STAGING" },
			errMsg: "unknown environment",
		},
		{
			name:   "unknown lock backend",
			modify: func(c *Config) { c.LockBackend = "zookeeper" },
			errMsg: "unknown LOCK_BACKEND",
		},
		{
			name:   "redis locks need a url",
			modify: func(c *Config) { c.LockBackend = LOCK_BACKEND_REDIS },
			errMsg: "REDIS_URL",
		},
		{
			name: "dynamo locks need a table",
			modify: func(c *Config) {
				c.LockBackend = LOCK_BACKEND_DYNAMO
				c.DynamoTableName = ""
			},
			errMsg: "LOCK_BACKEND dynamo requires DYNAMO_TABLE_NAME",
		},
		{
			name: "production refuses in process locks",
			modify: func(c *Config) {
				c.Environment = "PROD"
				c.StripeSecretKey = "sk_test"
				c.AllowedOrigins = []string{"https://games.example.com"}
			},
			errMsg: "single instance",
		},
		{
			name: "production needs a stripe key",
			modify: func(c *Config) {
				c.Environment = "PROD"
				c.LockBackend = LOCK_BACKEND_DYNAMO
				c.AllowedOrigins = []string{"https://games.example.com"}
			},
			errMsg: "STRIPE_SECRET_KEY",
		},
		{
			name:   "lock must outlive a gateway call",
			modify: func(c *Config) { c.LockTTL = 5 * time.Second },
			errMsg: "must be longer than a saga command can run",
		},
		{
			name: "lock must outlive every gateway retry",
			modify: func(c *Config) {
				c.LockTTL = 30 * time.Second
			},
			errMsg: "LOCK_TTL 30s must be longer than a saga command can run (42s)",
		},
		{
			name: "lock must outlive the store calls",
			modify: func(c *Config) {
				c.LockTTL = 35 * time.Second
				c.GatewayTimeout = 5 * time.Second
				c.StoreTimeout = 3 * time.Second
			},
			errMsg: "(39s)",
		},
		{
			name:   "at least one try",
			modify: func(c *Config) { c.RetryMaxTries = 0 },
			errMsg: "RETRY_MAX_TRIES",
		},
	}

	require.NoError(t, valid().Validate())

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
