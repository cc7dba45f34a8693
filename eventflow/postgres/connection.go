package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	dbOpenFn = sql.Open

	connectionStringCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	connectionStringPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
	dbNamePattern                      = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

// Connection manages a singleton postgres connection for the event store,
// applying the embedded schema migrations on first connect.
type Connection struct {
	ConnectionString   string
	DatabaseName       string
	Component          string
	SkipMigrations     bool
	Logger             *zap.Logger
	MaxOpenConnections int
	MaxIdleConnections int

	db        *sql.DB
	connected bool
	mu        sync.RWMutex
}

func (c *Connection) initDefaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = defaultMaxOpenConns
	}

	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = defaultMaxIdleConns
	}
}

// Connect opens the database connection and runs migrations.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

// connectLocked performs the actual connection. Caller must hold c.mu write lock.
func (c *Connection) connectLocked(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.initDefaults()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	if c.db != nil {
		if err := c.closeLocked(); err != nil {
			c.Logger.Warn("failed to close previous connection before reconnect", zap.Error(err))
		}
	}

	c.Logger.Info("connecting to event store database")

	db, err := dbOpenFn("pgx", c.ConnectionString)
	if err != nil {
		sanitized := sanitizeSensitiveError(err)
		c.Logger.Error("failed to open event store database", zap.String("error", sanitized))

		return fmt.Errorf("failed to open event store database: %s", sanitized)
	}

	var success bool

	defer func() {
		if !success {
			db.Close()
		}
	}()

	db.SetMaxOpenConns(c.MaxOpenConnections)
	db.SetMaxIdleConns(c.MaxIdleConnections)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if !c.SkipMigrations {
		if err := runMigrations(db, c.DatabaseName, c.Logger); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before ping: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		c.Logger.Error("failed to ping event store database", zap.String("error", sanitizeSensitiveError(err)))

		return fmt.Errorf("failed to ping event store database: %w", err)
	}

	c.connected = true
	c.db = db

	c.Logger.Info("connected to event store database")

	success = true

	return nil
}

// GetDB returns the database handle, connecting lazily if needed.
func (c *Connection) GetDB(ctx context.Context) (*sql.DB, error) {
	c.mu.RLock()

	if c.db != nil {
		db := c.db
		c.mu.RUnlock()

		return db, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if c.db != nil {
		return c.db, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.db, nil
}

// Close releases database connection resources.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		c.connected = false

		return err
	}

	return nil
}

// IsConnected reports whether the connection is initialized.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

func runMigrations(db *sql.DB, databaseName string, logger *zap.Logger) error {
	if err := validateDBName(databaseName); err != nil {
		logger.Error("invalid database name", zap.Error(err))

		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		logger.Error("failed to load embedded migrations", zap.Error(err))

		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		DatabaseName: databaseName,
		SchemaName:   "public",
	})
	if err != nil {
		logger.Error("failed to create postgres driver instance", zap.Error(err))

		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, databaseName, driver)
	if err != nil {
		logger.Error("failed to create migration instance", zap.Error(err))

		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no new migrations found, skipping")

			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			logger.Error("migration failed on dirty version", zap.Int("version", dirtyErr.Version))

			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}

		logger.Error("migration failed", zap.Error(err))

		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

func validateDBName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}

	return nil
}

func sanitizeSensitiveError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := connectionStringCredentialsPattern.ReplaceAllString(err.Error(), "://***@")
	sanitized = connectionStringPasswordPattern.ReplaceAllString(sanitized, "${1}***")

	return sanitized
}
