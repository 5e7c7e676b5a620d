package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/core/resolver"
	"github.com/siherrmann/biograph/model"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and settle entities waiting for review",
	Long: `Work through the review queue. Entities land there when a mention
matched more than one stored entity, when classification stayed below the
confidence threshold or when attribute structuring kept failing.

Examples:
  biograph review list                       # Show the review queue
  biograph review similar <id>               # Possible duplicates of an entity
  biograph review promote <id>               # Confirm an entity
  biograph review reject <id> -r "duplicate" # Reject with a reason`,
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities waiting for review",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		config := model.DefaultReviewConfig()
		config.Limit = limit
		config.Offset = offset

		b := newBiograph()
		defer b.Close()

		entities, err := b.NeedsReview(cmd.Context(), &config)
		if err != nil {
			fatal("%v", err)
		}
		if len(entities) == 0 {
			fmt.Println("No entities waiting for review.")
			return
		}

		fmt.Printf("%d entities waiting for review:\n", len(entities))
		for _, entity := range entities {
			printEntity(entity)
		}
	},
}

var reviewSimilarCmd = &cobra.Command{
	Use:   "similar <id>",
	Short: "Show stored entities similar to the given one",
	Long: `Show stored entities whose profile embedding is close to the given
entity's. Requires profile embeddings, run discovery with --embed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rid := parseEntityID(args[0])
		topK, _ := cmd.Flags().GetInt("top-k")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		config := model.DefaultReviewConfig()
		config.SimilarTopK = topK
		config.SimilarityThreshold = threshold

		b := newBiograph()
		defer b.Close()

		entities, err := b.SimilarEntities(cmd.Context(), rid, &config)
		if err != nil {
			fatal("%v", err)
		}
		if len(entities) == 0 {
			fmt.Println("No similar entities found.")
			return
		}

		for _, entity := range entities {
			fmt.Printf("  %.3f ", entity.Similarity)
			printEntity(entity)
		}
	},
}

var reviewPromoteCmd = &cobra.Command{
	Use:   "promote <id>",
	Short: "Confirm an entity and settle its open conflicts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rid := parseEntityID(args[0])

		b := newBiograph()
		defer b.Close()

		entity, err := b.PromoteEntity(cmd.Context(), rid)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Promoted %v (%v) to %v\n", entity.Name, entity.ID, entity.Status)
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject an entity with a reason",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rid := parseEntityID(args[0])
		reason, _ := cmd.Flags().GetString("reason")

		b := newBiograph()
		defer b.Close()

		entity, err := b.RejectEntity(cmd.Context(), rid, reason)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Rejected %v (%v): %v\n", entity.Name, entity.ID, entity.RejectedReason)
	},
}

func parseEntityID(arg string) uuid.UUID {
	rid, err := uuid.Parse(arg)
	if err != nil {
		fatal("invalid entity id %v: %v", arg, err)
	}
	return rid
}

// printEntity writes a one line summary followed by indented detail lines.
func printEntity(entity *model.Entity) {
	fmt.Printf("%v  %v [%v]\n", entity.ID, entity.Name, entity.Status)
	if len(entity.Aliases) > 0 {
		fmt.Printf("    also known as: %v\n", strings.Join(entity.Aliases, ", "))
	}
	if entity.Attributes.Born != nil {
		fmt.Printf("    born: %v\n", entity.Attributes.Born)
	}
	if entity.Attributes.Locality != "" {
		fmt.Printf("    from: %v\n", entity.Attributes.Locality)
	}
	for _, conflict := range entity.Conflicts {
		fmt.Printf("    conflict on %v: %v (document %v)\n", conflict.Field, conflict.Value, conflict.DocumentRID)
	}
	if len(entity.ReviewRefs) > 0 {
		refs := make([]string, len(entity.ReviewRefs))
		for i, ref := range entity.ReviewRefs {
			refs[i] = ref.String()
		}
		fmt.Printf("    possible matches: %v\n", strings.Join(refs, ", "))
	}
	if reason, ok := entity.Metadata[resolver.MetadataReviewReason]; ok {
		fmt.Printf("    reason: %v\n", reason)
	}
}

func init() {
	reviewListCmd.Flags().Int("limit", model.DefaultReviewConfig().Limit, "Maximum number of entities to list")
	reviewListCmd.Flags().Int("offset", 0, "Number of entities to skip")
	reviewSimilarCmd.Flags().Int("top-k", model.DefaultReviewConfig().SimilarTopK, "Number of similar entities to return")
	reviewSimilarCmd.Flags().Float64("threshold", model.DefaultReviewConfig().SimilarityThreshold, "Minimum cosine similarity")
	reviewRejectCmd.Flags().StringP("reason", "r", "", "Reason recorded with the rejection")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewSimilarCmd)
	reviewCmd.AddCommand(reviewPromoteCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	rootCmd.AddCommand(reviewCmd)
}
