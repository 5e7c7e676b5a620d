package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/siherrmann/biograph/model"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [seed ...]",
	Short: "Run a discovery crawl from the given seed articles",
	Long: `Run a bounded discovery crawl. Seeds name the articles the crawl starts
from, further articles are reached through links discovered on the way.
The run stops when the frontier is exhausted or a budget is reached.

Seeds given as arguments are added to the ones from the config file.
Flags override the matching config file values.

Examples:
  biograph run "Ada Lovelace"                      # Crawl with defaults
  biograph run --config run.yaml                   # Crawl from a config file
  biograph run "Johannes Kepler" --max-depth 1     # Only direct links
  biograph run "Ada Lovelace" --embed --json       # Embed profiles, JSON report`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		embed, _ := cmd.Flags().GetBool("embed")
		jsonFormat, _ := cmd.Flags().GetBool("json")

		config := model.DefaultRunConfig()
		if configPath != "" {
			loaded, err := model.RunConfigFromFile(configPath)
			if err != nil {
				fatal("%v", err)
			}
			config = *loaded
		}
		config.Seeds = append(config.Seeds, args...)

		if cmd.Flags().Changed("max-depth") {
			config.MaxDepth, _ = cmd.Flags().GetInt("max-depth")
		}
		if cmd.Flags().Changed("max-documents") {
			config.MaxDocuments, _ = cmd.Flags().GetInt("max-documents")
		}
		if cmd.Flags().Changed("max-entities") {
			config.MaxEntities, _ = cmd.Flags().GetInt("max-entities")
		}
		if cmd.Flags().Changed("promote-threshold") {
			config.PromoteThreshold, _ = cmd.Flags().GetInt("promote-threshold")
		}
		if cmd.Flags().Changed("workers") {
			config.Workers, _ = cmd.Flags().GetInt("workers")
		}

		if err := config.Validate(); err != nil {
			fatal("%v", err)
		}

		b := newBiograph()
		defer b.Close()

		// Key comes from ANTHROPIC_API_KEY
		if err := b.UseDefaultPipeline("", config); err != nil {
			fatal("%v", err)
		}
		if embed {
			if err := b.UseProfileEmbedder(); err != nil {
				fatal("%v", err)
			}
		}

		report, err := b.Run(cmd.Context(), config)
		if err != nil {
			fatal("%v", err)
		}

		if jsonFormat {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				fatal("marshal report: %v", err)
			}
			fmt.Println(string(out))
			return
		}
		printReport(report)
	},
}

func printReport(report *model.RunReport) {
	fmt.Printf("Discovery run finished (%v) in %v\n", report.State, report.Duration.Round(time.Millisecond))
	fmt.Printf("  Documents processed:  %d\n", report.Documents)
	fmt.Printf("  Candidates extracted: %d\n", report.Candidates)

	statuses := []model.EntityStatus{model.StatusConfirmed, model.StatusCandidate, model.StatusNeedsReview, model.StatusRejected}
	counts := []string{}
	for _, status := range statuses {
		if report.EntitiesByStatus[status] > 0 {
			counts = append(counts, fmt.Sprintf("%v %d", status, report.EntitiesByStatus[status]))
		}
	}
	if len(counts) > 0 {
		fmt.Printf("  Entities:             %v\n", strings.Join(counts, ", "))
	}
	if report.FrontierRemaining > 0 {
		fmt.Printf("  Frontier remaining:   %d\n", report.FrontierRemaining)
	}

	if len(report.Failures) > 0 {
		fmt.Printf("Failures:\n")
		for _, failure := range report.Failures {
			if failure.Target != "" {
				fmt.Printf("  - %v at %v: %v\n", failure.Target, failure.Stage, failure.Reason)
			} else {
				fmt.Printf("  - %v: %v\n", failure.Stage, failure.Reason)
			}
		}
	}
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Path to a YAML run configuration")
	runCmd.Flags().Int("max-depth", model.DefaultRunConfig().MaxDepth, "Maximum link depth from the seeds")
	runCmd.Flags().Int("max-documents", model.DefaultRunConfig().MaxDocuments, "Maximum number of documents to process")
	runCmd.Flags().Int("max-entities", model.DefaultRunConfig().MaxEntities, "Maximum number of tracked entities")
	runCmd.Flags().Int("promote-threshold", model.DefaultRunConfig().PromoteThreshold, "Documents required to confirm an entity")
	runCmd.Flags().Int("workers", model.DefaultRunConfig().Workers, "Number of concurrent fetch workers")
	runCmd.Flags().Bool("embed", false, "Compute profile embeddings for stored entities")
	runCmd.Flags().Bool("json", false, "Print the run report as JSON")
	rootCmd.AddCommand(runCmd)
}
