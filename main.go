package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/resource-engine/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/resource-engine/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/resource-engine/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/resource-engine/pkg/config"
	"github.com/ekaya-inc/resource-engine/pkg/definitions"
	"github.com/ekaya-inc/resource-engine/pkg/logging"
	"github.com/ekaya-inc/resource-engine/pkg/models"
	"github.com/ekaya-inc/resource-engine/pkg/serializer"
	"github.com/ekaya-inc/resource-engine/pkg/services"
	sqlgen "github.com/ekaya-inc/resource-engine/pkg/sql"
	"github.com/ekaya-inc/resource-engine/pkg/triggers"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = config.DefaultPath
	}

	cfg, err := config.Load(path, Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.IsDevelopment(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, os.Args[1:], logger); err != nil {
		logger.Error("Startup failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run builds the engine and checks every definition under the resources
// directory, then probes each configured database once. Each argument names a
// resource whose document is read and written to stdout.
func run(cfg *config.Config, args []string, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("resources_dir", cfg.Resources.Dir),
		zap.String("document_format", cfg.Engine.DocumentFormat),
		zap.Bool("compress_documents", cfg.Engine.CompressDocuments),
		zap.Int("databases", len(cfg.Databases)),
	)

	databases, err := datasourceConfigs(cfg)
	if err != nil {
		return err
	}
	connections := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:   cfg.Datasource.ConnectionTTLMinutes,
		PoolMaxConns: cfg.Datasource.PoolMaxConns,
		PoolMinConns: cfg.Datasource.PoolMinConns,
	}, databases, logger)
	defer func() { _ = connections.Close() }()

	store := definitions.NewStore(definitions.StoreConfig{BaseDir: cfg.Resources.Dir}, logger)

	triggerManager := triggers.NewManager(logger)
	if cfg.Resources.TriggersFile != "" {
		if err := triggerManager.LoadBindings(cfg.Resources.TriggersFile, triggers.Builtins(logger)); err != nil {
			return err
		}
	}

	docSerializer, err := serializer.ForFormat(cfg.Engine.DocumentFormat)
	if err != nil {
		return err
	}
	if cfg.Engine.CompressDocuments {
		compressed, err := serializer.NewCompressed(docSerializer)
		if err != nil {
			return err
		}
		defer func() { _ = compressed.Close() }()
		docSerializer = compressed
	}

	builder := sqlgen.NewBuilder(connections, sqlgen.BuilderOptions{RejectInjection: cfg.Engine.RejectInjection})
	engine := services.NewResourceService(store, builder, triggerManager, docSerializer, connections,
		services.ResourceServiceOptions{CascadeScopedDeletes: cfg.Engine.CascadeScopedDeletes}, logger)

	if err := validateDefinitions(store, databases, logger); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	probeDatabases(ctx, connections, logger)

	for _, name := range args {
		req := models.NewRequest(models.RequestTypeSelect, name, nil, nil)
		doc, err := engine.ReadDocument(ctx, req)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		logger.Info("Read resource",
			zap.String("resource", name),
			zap.String("request_id", req.ID.String()),
			zap.String("format", doc.Format),
			zap.Int("bytes", len(doc.Body)),
		)
		if _, err := os.Stdout.Write(doc.Body); err != nil {
			return err
		}
	}
	return nil
}

// datasourceConfigs maps configured databases onto the datasource layer,
// rejecting types no adapter serves.
func datasourceConfigs(cfg *config.Config) (map[string]datasource.DatabaseConfig, error) {
	out := make(map[string]datasource.DatabaseConfig, len(cfg.Databases))
	for name, db := range cfg.Databases {
		if !datasource.IsRegistered(db.Type) {
			return nil, fmt.Errorf("database %s: unsupported type %q", name, db.Type)
		}
		out[name] = datasource.DatabaseConfig{
			Name:                   name,
			Type:                   db.Type,
			Host:                   db.Host,
			Port:                   db.Port,
			User:                   db.User,
			Password:               db.Password,
			Database:               db.Database,
			SSLMode:                db.SSLMode,
			AuthMethod:             db.AuthMethod,
			TenantID:               db.TenantID,
			ClientID:               db.ClientID,
			ClientSecret:           db.ClientSecret,
			Encrypt:                db.Encrypt,
			TrustServerCertificate: db.TrustServerCertificate,
		}
	}
	return out, nil
}

// validateDefinitions loads every definition through the store. A definition
// fails when it does not parse or names a database that is not configured.
func validateDefinitions(store *definitions.Store, databases map[string]datasource.DatabaseConfig, logger *zap.Logger) error {
	names, err := store.ListNames()
	if err != nil {
		return err
	}

	failed := 0
	for _, name := range names {
		res, err := store.Get(name)
		if err == nil {
			if db := res.MetaData().Database; db != "" {
				if _, ok := databases[db]; !ok {
					err = fmt.Errorf("database %q is not configured", db)
				}
			}
		}
		if err != nil {
			failed++
			logger.Error("Invalid resource definition",
				zap.String("resource", name),
				zap.String("error", logging.SanitizeError(err)),
			)
			continue
		}
		logger.Info("Resource definition valid",
			zap.String("resource", name),
			zap.Bool("hierarchical", res.IsHierarchical()),
			zap.String("database", res.MetaData().Database),
		)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d resource definitions failed validation", failed, len(names))
	}
	logger.Info("All resource definitions valid", zap.Int("count", len(names)))
	return nil
}

// probeDatabases opens each pool once. Unreachable databases are logged, not fatal.
func probeDatabases(ctx context.Context, connections *datasource.ConnectionManager, logger *zap.Logger) {
	for _, name := range connections.Databases() {
		if _, err := connections.GetOrCreateDB(ctx, name); err != nil {
			logger.Warn("Database unreachable",
				zap.String("database", name),
				zap.String("error", logging.SanitizeError(err)),
			)
		}
	}
	stats := connections.GetStats()
	logger.Info("Connection pools ready",
		zap.Int("open", stats.TotalConnections),
		zap.Any("by_type", stats.ConnectionsByType),
	)
}
