package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/siherrmann/biograph"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Default seeds when none are given on the command line.
var defaultSeeds = []string{"Ada Lovelace"}

// startPostgresContainer starts a PostgreSQL container with a bind-mounted
// data directory, so discovered entities survive between runs.
func startPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	// Create data directory if it doesn't exist
	dataDir := "./data"
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path for data directory: %w", err)
	}

	// Check if database already exists (data directory has PG_VERSION file)
	pgVersionFile := filepath.Join(absDataDir, "PG_VERSION")
	_, err = os.Stat(pgVersionFile)
	dbExists := err == nil

	// When database already exists, PostgreSQL doesn't re-initialize,
	// so the ready message only appears once instead of twice
	waitOccurrences := 2
	if dbExists {
		waitOccurrences = 1
		fmt.Printf("Using existing persistent database in: %s\n", absDataDir)
	} else {
		fmt.Printf("Creating new persistent database in: %s\n", absDataDir)
	}

	options := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(waitOccurrences),
		),
		testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
			hc.Mounts = append(hc.Mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: absDataDir,
				Target: "/var/lib/postgresql/data",
			})
		}),
	}

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		options...,
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("error getting connection string: %w", err)
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return nil, "", fmt.Errorf("error parsing connection string: %v", err)
	}

	return pgContainer.Terminate, u.Port(), nil
}

func main() {
	// The extraction collaborator needs a real key
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		log.Fatal("ANTHROPIC_API_KEY is not set. Export it before running the live example.")
	}

	seeds := os.Args[1:]
	if len(seeds) == 0 {
		seeds = defaultSeeds
	}

	// Start a PostgreSQL container with a persistent data directory
	teardown, dbPort, err := startPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// The default profile embedder produces 384-dimensional vectors
	b, err := biograph.NewBiograph(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create biograph: %v", err)
	}
	defer b.Close()

	// Configure a conservative crawl against the live Wikipedia
	config := model.DefaultRunConfig()
	config.Seeds = seeds
	config.MaxDepth = 1
	config.MaxDocuments = 10
	config.Workers = 2
	config.CallTimeout = 90 * time.Second

	// Wikipedia fetcher plus Anthropic extraction, classification and
	// structuring
	fmt.Println("Setting up the extraction pipeline...")
	if err := b.UseDefaultPipeline("", config); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}
	if err := b.UseProfileEmbedder(); err != nil {
		log.Fatalf("Failed to set up profile embedder: %v", err)
	}

	// Show what previous runs already collected
	existing, err := b.Documents.SelectAllDocuments(nil, 1000)
	if err != nil {
		log.Printf("Warning: could not check existing documents: %v", err)
	} else if len(existing) > 0 {
		fmt.Printf("Found %d documents from previous runs in the database\n", len(existing))
	}

	fmt.Printf("Crawling from seeds %v...\n", seeds)
	report, err := b.Run(context.Background(), config)
	if err != nil {
		log.Fatalf("Failed to run discovery: %v", err)
	}

	fmt.Printf("\n✓ Discovery run finished (%v) in %v:\n", report.State, report.Duration.Round(time.Second))
	fmt.Printf("  - Documents processed:  %d\n", report.Documents)
	fmt.Printf("  - Candidates extracted: %d\n", report.Candidates)
	for status, count := range report.EntitiesByStatus {
		fmt.Printf("  - Entities %v: %d\n", status, count)
	}
	if len(report.Failures) > 0 {
		fmt.Printf("  - Failures: %d\n", len(report.Failures))
		for _, failure := range report.Failures {
			fmt.Printf("      %v at %v: %v\n", failure.Target, failure.Stage, failure.Reason)
		}
	}

	// Print confirmed people
	confirmed, err := b.Entities.SelectEntitiesByStatus(model.StatusConfirmed, 20)
	if err != nil {
		log.Fatalf("Failed to select confirmed entities: %v", err)
	}
	fmt.Printf("\nConfirmed people (%d):\n", len(confirmed))
	for _, entity := range confirmed {
		born := "?"
		if entity.Attributes.Born != nil {
			born = entity.Attributes.Born.String()
		}
		fmt.Printf("  - %s (born %s), seen in %d documents\n", entity.Name, born, len(entity.Provenance))
	}

	// Print what needs a human decision
	queue, err := b.NeedsReview(context.Background(), nil)
	if err != nil {
		log.Fatalf("Failed to list review queue: %v", err)
	}
	if len(queue) > 0 {
		fmt.Printf("\nWaiting for review (%d):\n", len(queue))
		for _, entity := range queue {
			fmt.Printf("  - %s (%s)\n", entity.Name, entity.ID)
		}
		fmt.Println("\nSettle these with: biograph review promote/reject <id>")
	}

	fmt.Println("\nLive example completed!")
}
