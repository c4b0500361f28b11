// Package config assembles a runnable record service from declarative
// configuration: repository backend, artifact storage, authorization and
// package working directories.
package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/artifact"
	s3artifact "github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/artifact/s3"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/repo/memory"
	repopg "github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "medrecord",
		ArtifactBackend: ArtifactBackendConfig{
			Type:   "fs",
			Config: map[string]interface{}{"base_dir": "./data/artifacts"},
		},
		PackageWorkDir: "./data/packwork",
	}
}

// ServerConfig represents server configuration for the record service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: medrecord)

	// Artifact storage
	ArtifactBackend ArtifactBackendConfig

	// Package building
	PackageWorkDir         string
	PackageFallbackWorkDir string

	// Authorization
	AdminActors []string // actor ids holding the delete capability
	JWTSecret   string   // enables JWT actor extraction when set
}

// ArtifactBackendConfig represents configuration for an artifact store
type ArtifactBackendConfig struct {
	Type   string // "fs", "s3", "none"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.ArtifactBackend.Type {
	case "fs", "s3", "none":
	default:
		return fmt.Errorf("unsupported artifact backend type: %s", c.ArtifactBackend.Type)
	}

	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService() (medrecord.Service, error) {
	repo, err := c.BuildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	options := []medrecord.Option{
		medrecord.WithRepository(repo),
	}
	if len(c.AdminActors) > 0 {
		options = append(options, medrecord.WithDeleteAuthorizer(
			medrecord.NewStaticDeleteAuthorizer(c.AdminActors...)))
	}

	return medrecord.New(options...)
}

// BuildRepository creates a Repository based on the configuration
func (c *ServerConfig) BuildRepository() (medrecord.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildArtifactStore creates an ArtifactStore based on the configuration.
// Returns nil for the "none" backend; packages then carry no artifacts.
func (c *ServerConfig) BuildArtifactStore() (medrecord.ArtifactStore, error) {
	switch c.ArtifactBackend.Type {
	case "none":
		return nil, nil

	case "fs":
		return artifact.New(artifact.Config{
			BaseDir: getString(c.ArtifactBackend.Config, "base_dir", "./data/artifacts"),
		})

	case "s3":
		return s3artifact.New(context.Background(), s3artifact.Config{
			Region:          getString(c.ArtifactBackend.Config, "region", "us-east-1"),
			Bucket:          getString(c.ArtifactBackend.Config, "bucket", ""),
			AccessKeyID:     getString(c.ArtifactBackend.Config, "access_key_id", ""),
			SecretAccessKey: getString(c.ArtifactBackend.Config, "secret_access_key", ""),
			Endpoint:        getString(c.ArtifactBackend.Config, "endpoint", ""),
			UsePathStyle:    getBool(c.ArtifactBackend.Config, "use_path_style", false),
			KeyPrefix:       getString(c.ArtifactBackend.Config, "key_prefix", ""),
		})

	default:
		return nil, fmt.Errorf("unsupported artifact backend type: %s", c.ArtifactBackend.Type)
	}
}

// PingPostgres verifies connectivity to Postgres and optionally sets
// search_path for the session. It fails if the schema (when provided)
// does not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
