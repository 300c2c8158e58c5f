package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/config"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/events"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/ingest"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/kafka"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/redis"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/staging"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/synchronizer"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/taxonomy"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing/exporters"
)

// components are the long-lived dependencies of a command. Optional ones
// stay nil when not configured.
type components struct {
	cfg    *config.Config
	logger ectologger.Logger

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	staging  *staging.SQLiteArea
	catalog  taxonomy.Catalog

	shutdownTracing func(context.Context) error
}

func (c *components) setupTracing(ctx context.Context) error {
	c.shutdownTracing = tracing.Setup(c.cfg.AppName, nil)
	if !c.cfg.TracingEnabled() {
		return nil
	}
	exporter, err := exporters.NewOTLPExporter(ctx, c.cfg.OTLP())
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	c.shutdownTracing = tracing.Setup(c.cfg.AppName, exporter)
	return nil
}

func (c *components) connectPostgres(ctx context.Context) error {
	db, err := database.Connect(ctx, c.cfg.Database(), c.logger)
	if err != nil {
		return err
	}
	c.db = db
	return nil
}

func (c *components) migrate() error {
	return database.NewMigrationService(c.logger, c.cfg.Migration()).MigratePostgres(c.db.SQLDB(), c.cfg.DatabaseName)
}

func (c *components) connectRedis(ctx context.Context) error {
	if !c.cfg.RedisEnabled() {
		return nil
	}
	client, err := redis.NewClient(ctx, c.cfg.Redis(), c.logger)
	if err != nil {
		return err
	}
	c.redis = client
	return nil
}

func (c *components) openKafka() {
	if c.cfg.KafkaEnabled {
		c.producer = kafka.NewProducer(c.cfg.Kafka(), c.logger)
	}
}

func (c *components) openStaging() error {
	area, err := staging.OpenSQLite(c.cfg.StagingPath)
	if err != nil {
		return err
	}
	c.staging = area
	return nil
}

func (c *components) loadCatalog() error {
	var (
		catalog *taxonomy.FileCatalog
		err     error
	)
	if c.cfg.TaxonomyPath == "" {
		catalog, err = taxonomy.Default()
	} else {
		catalog, err = taxonomy.LoadFile(c.cfg.TaxonomyPath)
	}
	if err != nil {
		return err
	}
	c.catalog = catalog
	c.logger.WithField("version", catalog.Version()).Info("Loaded taxonomy catalog")
	return nil
}

// ingestService wires an ingest service over store. A dry run never
// publishes events and takes no dataset lock.
func (c *components) ingestService(store registry.Store, runs registry.RunStore, dryRun bool) *ingest.Service {
	syncOpts := synchronizer.Options{TxTimeout: c.cfg.SyncTxTimeout, DryRun: dryRun}
	var opts []ingest.Option

	if c.producer != nil && !dryRun {
		emitter := events.NewEmitter(c.producer, c.logger)
		syncOpts.Emitter = emitter
		opts = append(opts, ingest.WithRunEmitter(emitter))
	}
	if c.redis != nil && !dryRun {
		opts = append(opts, ingest.WithLocker(redis.NewLocker(c.redis, ""), c.cfg.SyncLockTTL))
	}

	loader := staging.NewLoader(c.catalog, c.staging, c.logger)
	sync := synchronizer.New(store, c.logger, syncOpts)
	return ingest.NewService(loader, sync, runs, c.logger, opts...)
}

func (c *components) Close(ctx context.Context) {
	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close Kafka producer")
		}
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.staging != nil {
		_ = c.staging.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	if c.shutdownTracing != nil {
		if err := c.shutdownTracing(ctx); err != nil {
			c.logger.WithError(err).Warn("Failed to flush traces")
		}
	}
}
