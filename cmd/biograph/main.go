package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/siherrmann/biograph"
	"github.com/siherrmann/biograph/helper"
	"github.com/spf13/cobra"
)

var (
	envFile      string
	embeddingDim int
)

var rootCmd = &cobra.Command{
	Use:   "biograph",
	Short: "Discover and resolve person entities from encyclopedic articles",
	Long: `Biograph crawls encyclopedic articles, extracts person mentions with an
LLM collaborator, resolves them into deduplicated entities and stores
documents, links and entities in PostgreSQL.

The database connection is configured through environment variables
(DB_HOST, DB_PORT, DB_DATABASE, DB_USERNAME, DB_PASSWORD), either from
the process environment or from a .env file. Discovery runs additionally
need ANTHROPIC_API_KEY for the extraction collaborator.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before connecting")
	rootCmd.PersistentFlags().IntVar(&embeddingDim, "embedding-dim", 384, "Dimension of stored profile embeddings")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatal prints the error and exits. Runtime failures go through this so
// cobra does not print usage text after them.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// newBiograph connects to the database configured through the environment.
// The caller owns the returned instance and has to close it.
func newBiograph() *biograph.Biograph {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fatal("load env file %v: %v", envFile, err)
		}
	}

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		fatal("%v", err)
	}

	b, err := biograph.NewBiograph(dbConfig, embeddingDim)
	if err != nil {
		fatal("%v", err)
	}
	return b
}
