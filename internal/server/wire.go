/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/limitgate/internal/api"
	"github.com/friendsincode/limitgate/internal/audit"
	"github.com/friendsincode/limitgate/internal/awsclient"
	"github.com/friendsincode/limitgate/internal/cache"
	"github.com/friendsincode/limitgate/internal/config"
	"github.com/friendsincode/limitgate/internal/db"
	"github.com/friendsincode/limitgate/internal/dispatch"
	"github.com/friendsincode/limitgate/internal/eventbus"
	"github.com/friendsincode/limitgate/internal/events"
	"github.com/friendsincode/limitgate/internal/notifications"
	"github.com/friendsincode/limitgate/internal/policy"
	"github.com/friendsincode/limitgate/internal/secrets"
	"github.com/friendsincode/limitgate/internal/storage"
)

// Deps holds the collaborators shared by the HTTP server and the Lambda
// handler. Optional members are nil when not configured.
type Deps struct {
	Bus        *events.Bus
	DB         *gorm.DB
	Cache      *cache.Cache
	Policies   policy.Lookup
	PolicyFile *policy.FileLookup
	Dispatcher *dispatch.Service
	API        *api.API
	Audit      *audit.Service
	Relay      *eventbus.RedisRelay

	closers []func() error
}

// Wire builds every collaborator selected by cfg. On error, whatever was
// already opened is closed.
func Wire(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (deps *Deps, err error) {
	d := &Deps{Bus: events.NewBus()}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	var clients *awsclient.Clients
	if needsAWS(cfg) {
		clients, err = awsclient.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if cfg.HasDatabase() {
		database, err := db.Connect(cfg)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return nil, err
		}
		d.DB = database
		d.Audit = audit.NewService(database, d.Bus, logger)
	}

	policies, err := d.wirePolicies(cfg, clients, logger)
	if err != nil {
		return nil, err
	}
	d.Policies = policies

	opts := []dispatch.Option{dispatch.WithPublisher(d.Bus)}

	sinks, err := d.wireSinks(cfg, clients, logger)
	if err != nil {
		return nil, err
	}
	switch len(sinks) {
	case 0:
		logger.Warn().Msg("no command store configured; accepted commands are only returned")
	case 1:
		opts = append(opts, dispatch.WithStore(sinks[0]))
	default:
		opts = append(opts, dispatch.WithStore(sinks))
	}

	if notifier := wireNotifier(cfg, logger); notifier != nil {
		opts = append(opts, dispatch.WithNotifier(notifier))
	}

	switch cfg.SecretBackend {
	case config.SecretsManager:
		opts = append(opts, dispatch.WithTokens(secrets.NewSecretsManagerProvider(clients.SecretsManager, cfg.SecretID, cfg.SecretTokenField)))
	case config.SecretEnv:
		opts = append(opts, dispatch.WithTokens(secrets.Static(cfg.StaticToken)))
	}

	d.Dispatcher = dispatch.New(d.Policies, logger, opts...)
	d.API = api.New(d.Dispatcher, d.Policies, d.Bus, logger)
	return d, nil
}

func (d *Deps) wirePolicies(cfg *config.Config, clients *awsclient.Clients, logger zerolog.Logger) (policy.Lookup, error) {
	var policies policy.Lookup
	switch cfg.PolicyBackend {
	case config.PolicyDynamoDB:
		policies = policy.NewDynamoStore(clients.DynamoDB, cfg.DynamoDBTable, logger)
	case config.PolicySQL:
		if d.DB == nil {
			return nil, fmt.Errorf("sql policy backend requires a database")
		}
		policies = policy.NewSQLStore(d.DB)
	case config.PolicyFile:
		f, err := policy.LoadFile(cfg.PolicyFile, logger)
		if err != nil {
			return nil, err
		}
		d.PolicyFile = f
		policies = f
	default:
		return nil, fmt.Errorf("unsupported policy backend %q", cfg.PolicyBackend)
	}

	if !cfg.CacheEnabled {
		return policies, nil
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = cfg.RedisAddr
	cacheCfg.RedisPassword = cfg.RedisPassword
	cacheCfg.RedisDB = cfg.RedisDB
	cacheCfg.PolicyTTL = cfg.PolicyCacheTTL
	c, err := cache.New(cacheCfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		return policies, nil
	}
	d.Cache = c
	d.closers = append(d.closers, c.Close)
	if c.IsAvailable() {
		d.Relay = eventbus.NewRedisRelay(c.Client(), d.Bus, uuid.NewString(), logger, events.EventPolicyUpdated)
	}
	return policy.NewCached(policies, c, c.PolicyTTL(), logger), nil
}

func (d *Deps) wireSinks(cfg *config.Config, clients *awsclient.Clients, logger zerolog.Logger) (storage.Fanout, error) {
	var sinks storage.Fanout

	switch cfg.ObjectBackend {
	case config.ObjectS3:
		sinks = append(sinks, storage.NewCommandStore(storage.NewS3Store(clients.S3, cfg.S3Bucket, logger)))
	case config.ObjectFilesystem:
		if err := os.MkdirAll(cfg.ObjectDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create command directory %s: %w", cfg.ObjectDir, err)
		}
		fs := storage.NewFilesystemStore(cfg.ObjectDir, logger)
		if err := fs.CheckAccess(context.Background()); err != nil {
			return nil, err
		}
		sinks = append(sinks, storage.NewCommandStore(fs))
	}

	if cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.SubjectPrefix = cfg.NATSSubjectPrefix
		publisher, err := eventbus.Connect(natsCfg, logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, publisher.Close)
		sinks = append(sinks, publisher)
	}
	return sinks, nil
}

func wireNotifier(cfg *config.Config, logger zerolog.Logger) dispatch.Notifier {
	var channels notifications.Multi
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, notifications.NewSlack(notifications.SlackConfig{
			WebhookURL: cfg.SlackWebhookURL,
			RatePerSec: cfg.NotifyRatePerSec,
		}, logger))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, notifications.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, logger))
	}
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	default:
		return channels
	}
}

func needsAWS(cfg *config.Config) bool {
	return cfg.PolicyBackend == config.PolicyDynamoDB ||
		cfg.ObjectBackend == config.ObjectS3 ||
		cfg.SecretBackend == config.SecretsManager
}

// Close releases owned resources in reverse order.
func (d *Deps) Close() error {
	var firstErr error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.closers = nil
	return firstErr
}
