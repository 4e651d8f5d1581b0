package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/cohouse-dinner/game-registration/api"
	"github.com/cohouse-dinner/game-registration/config"
	"github.com/cohouse-dinner/game-registration/dynamo"
	"github.com/cohouse-dinner/game-registration/memstore"
	"github.com/cohouse-dinner/game-registration/payments"
	"github.com/cohouse-dinner/game-registration/redislock"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v85"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

type storage interface {
	api.DB
	saga.Store
}

var (
	_ storage = &dynamo.DB{}
	_ storage = &memstore.Store{}
)

func loadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.DynamoEndpoint != "" && cfg.Env() == api.LOCAL {
		// DynamoDB local accepts any credentials.
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to get aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	return awsCfg, nil
}

func createStorage(ctx context.Context, awsCfg aws.Config, cfg config.Config, logger *slog.Logger) (storage, error) {
	if cfg.DynamoTableName == "" {
		logger.Warn("No DynamoDB table configured, keeping all data in memory")
		return memstore.New(), nil
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	})
	if cfg.DynamoEndpoint != "" {
		if err := dynamo.EnsureTable(ctx, client, cfg.DynamoTableName); err != nil {
			return nil, err
		}
	}
	return dynamo.NewDB(client, cfg.DynamoTableName, cfg.StoreTimeout), nil
}

// createLocker returns the saga lock for the configured backend and a func
// releasing whatever connection it holds.
func createLocker(store storage, cfg config.Config) (saga.Locker, func(), error) {
	switch cfg.LockBackend {
	case config.LOCK_BACKEND_DYNAMO:
		db, ok := store.(*dynamo.DB)
		if !ok {
			return nil, nil, fmt.Errorf("LOCK_BACKEND dynamo needs the DynamoDB storage")
		}
		return dynamo.NewLeaseLocker(db, cfg.LockTTL), func() {}, nil

	case config.LOCK_BACKEND_REDIS:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		return redislock.NewLocker(client, cfg.LockTTL), func() { client.Close() }, nil

	default:
		return saga.NewLocalLocker(), func() {}, nil
	}
}

func createPaymentGateway(ctx context.Context, awsCfg aws.Config, cfg config.Config, logger *slog.Logger) (payments.Gateway, error) {
	if !cfg.UsesStripe() {
		logger.Warn("No Stripe key configured, every payment is captured locally")
		return payments.NewLocalGateway(), nil
	}

	key := cfg.StripeSecretKey
	if key == "" {
		var err error
		key, err = getSecretParameter(ctx, awsCfg, cfg.StripeSecretKeyParam)
		if err != nil {
			return nil, err
		}
	}

	return payments.NewStripeGateway(stripe.NewClient(key)), nil
}

func getSecretParameter(ctx context.Context, awsCfg aws.Config, name string) (string, error) {
	client := ssm.NewFromConfig(awsCfg)

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %q has no value", name)
	}

	return *out.Parameter.Value, nil
}
