package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/ashplayer/backend/internal/accounts"
	"github.com/ashplayer/backend/internal/config"
	"github.com/ashplayer/backend/internal/contacts"
	"github.com/ashplayer/backend/internal/db"
	"github.com/ashplayer/backend/internal/docstore"
	"github.com/ashplayer/backend/internal/handlers"
	"github.com/ashplayer/backend/internal/identity"
	"github.com/ashplayer/backend/internal/middleware"
	"github.com/ashplayer/backend/internal/playback"
	"github.com/ashplayer/backend/internal/repositories"
	"github.com/ashplayer/backend/internal/secret"
)

// dependencies holds the wired collaborators of the HTTP server.
type dependencies struct {
	Handlers handlers.Dependencies
	Verifier *identity.JWTVerifier
	Users    *repositories.UserRepository
	Accounts *accounts.Service
	Retrier  *accounts.Retrier
}

// Shutdown stops background workers.
func (d dependencies) Shutdown(ctx context.Context) error {
	if d.Retrier == nil {
		return nil
	}
	return d.Retrier.Shutdown(ctx)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(store docstore.Store, secrets secret.Resolver, cfg config.Config, logger *slog.Logger) dependencies {
	users := repositories.NewUserRepository(store)
	contactRepo := repositories.NewContactRepository(store)
	sessions := repositories.NewSessionRepository(store)
	invitations := repositories.NewInvitationRepository(store)

	verifier := identity.NewJWTVerifier(secrets, repositories.NewRevocationRepository(store), identity.Options{
		KeyParam: cfg.Identity.SecretParam,
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
	})

	accountSvc := accounts.NewService(accounts.Dependencies{
		Users:       users,
		Contacts:    contactRepo,
		Invitations: invitations,
		Sessions:    sessions,
		Deletions:   repositories.NewDeletionRepository(store),
		Identities:  verifier,
	})
	retrier := accounts.NewRetrier(accountSvc, accounts.RetrierConfig{
		QueueSize: cfg.Cascade.QueueSize,
		Workers:   cfg.Cascade.Workers,
		Interval:  cfg.Cascade.RetryInterval,
	}, logger)
	accountSvc.UseScheduler(retrier)

	var limiter handlers.RateLimiter
	if cfg.RateLimit.Requests > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
			Burst:    cfg.RateLimit.Burst,
		})
	}

	return dependencies{
		Handlers: handlers.Dependencies{
			Accounts: accountSvc,
			Contacts: contacts.NewService(users, contactRepo),
			Playback: playback.NewService(sessions, invitations, users),
			Limiter:  limiter,
		},
		Verifier: verifier,
		Users:    users,
		Accounts: accountSvc,
		Retrier:  retrier,
	}
}

// openStore selects the document store backend. The returned close function
// releases any connections it holds.
func openStore(ctx context.Context, cfg config.Config) (docstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return docstore.NewMemory(), func() {}, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return docstore.NewPostgres(pool), pool.Close, nil
	case config.StoreDynamoDB:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoDB.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
			}
		})
		return docstore.NewDynamo(client, cfg.DynamoDB.TablePrefix), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newSecretResolver selects where the token verification key is read from.
func newSecretResolver(ctx context.Context, cfg config.Config) (secret.Resolver, error) {
	switch cfg.Identity.SecretsBackend {
	case config.SecretsEnv:
		return secret.NewCached(secret.NewEnvResolver(config.EnvPrefix)), nil
	case config.SecretsSSM:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return secret.NewCached(secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))), nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Identity.SecretsBackend)
	}
}

func loadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(loadCtx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}
