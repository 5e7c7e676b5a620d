package helper

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the postgres connection parameters
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

// NewDatabaseConfiguration creates a database configuration from environment
// variables. A .env file in the working directory is loaded first if present.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	// The .env file is optional
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		Database: os.Getenv("DB_DATABASE"),
		Username: os.Getenv("DB_USERNAME"),
		Password: os.Getenv("DB_PASSWORD"),
		Schema:   os.Getenv("DB_SCHEMA"),
		SSLMode:  os.Getenv("DB_SSL_MODE"),
	}
	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	if config.Host == "" || config.Port == "" || config.Database == "" || config.Username == "" {
		return nil, NewError("database configuration", fmt.Errorf("missing required environment variables DB_HOST, DB_PORT, DB_DATABASE or DB_USERNAME"))
	}

	return config, nil
}

// ConnectionString returns the postgres connection string
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%v port=%v dbname=%v user=%v password=%v sslmode=%v search_path=%v",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode, c.Schema,
	)
}

// Database wraps an open sql.DB connection with its configuration and logger
type Database struct {
	Name     string
	Config   *DatabaseConfiguration
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens a postgres connection and verifies it with a ping.
// Connection failures are unrecoverable setup errors and exit the process.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		logger.Error("Failed to open database connection", slog.String("name", name), slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = db.Ping()
	if err != nil {
		logger.Error("Failed to ping database", slog.String("name", name), slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host), slog.String("database", config.Database))

	return &Database{
		Name:     name,
		Config:   config,
		Instance: db,
		Logger:   logger,
	}
}

// NewTestDatabase opens a postgres connection for tests. It panics when the
// connection cannot be established and keeps its logging quiet.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		panic(NewError("open test database", err))
	}

	err = db.Ping()
	if err != nil {
		panic(NewError("ping test database", err))
	}

	return &Database{
		Name:     "test",
		Config:   config,
		Instance: db,
		Logger:   slog.New(slog.DiscardHandler),
	}
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	return d.Instance.Close()
}
