package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph"
	"github.com/siherrmann/biograph/core/pipeline"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
)

const embeddingDim = 16

// The canned corpus is built to produce every resolution outcome: Kepler is
// confirmed through two documents, the two unrelated John Smiths force a
// third John Smith mention into review, and Sherlock Holmes is rejected.
var articles = map[string]*model.Document{
	"Johannes Kepler": {
		Source:  "https://en.wikipedia.org/wiki/Johannes_Kepler",
		Content: "Johannes Kepler was a German astronomer best known for his laws of planetary motion.",
		Links:   []model.Link{{Target: "Tycho Brahe"}},
	},
	"Tycho Brahe": {
		Source:  "https://en.wikipedia.org/wiki/Tycho_Brahe",
		Content: "Tycho Brahe was a Danish astronomer. Johannes Kepler worked as his assistant.",
	},
	"John Smith (explorer)": {
		Source:  "https://en.wikipedia.org/wiki/John_Smith_(explorer)",
		Content: "John Smith was an English explorer. Another John Smith was a clockmaker. Sherlock Holmes is a fictional detective sometimes compared to him.",
	},
}

var mentions = map[string][]*model.Candidate{
	"Johannes Kepler": {
		{
			Name:          "Johannes Kepler",
			RawAttributes: map[string]string{"born": "1571-12-27"},
			Links:         []model.Link{{Target: "Tycho Brahe", Relationship: "mentor"}},
			Confidence:    0.9,
		},
	},
	"Tycho Brahe": {
		{
			Name:          "Tycho Brahe",
			RawAttributes: map[string]string{"born": "1546-12-14"},
			Confidence:    0.9,
		},
		{
			Name:          "Johannes Kepler",
			RawAttributes: map[string]string{"born": "1571-12-27", "locality": "Weil der Stadt"},
			Confidence:    0.9,
		},
	},
	"John Smith (explorer)": {
		{
			Name:          "John Smith",
			RawAttributes: map[string]string{"born": "1580", "locality": "Willoughby"},
			Confidence:    0.9,
		},
		{
			Name:          "John Smith",
			RawAttributes: map[string]string{"born": "1724", "locality": "London"},
			Confidence:    0.9,
		},
		{
			Name:          "John Smith",
			RawAttributes: map[string]string{},
			Confidence:    0.9,
		},
		{
			Name:          "Sherlock Holmes",
			RawAttributes: map[string]string{"kind": "fictional"},
			Confidence:    0.9,
		},
	},
}

type cannedFetcher struct{}

func (f *cannedFetcher) FetchArticle(ctx context.Context, title string) (*model.Document, error) {
	article, ok := articles[title]
	if !ok {
		return nil, fmt.Errorf("article %v not found", title)
	}
	document := *article
	document.RID = uuid.New()
	document.Title = title
	return &document, nil
}

func cannedPipeline() *pipeline.Pipeline {
	extractor := func(ctx context.Context, document *model.Document) ([]*model.Candidate, error) {
		return mentions[document.Title], nil
	}
	classifier := func(ctx context.Context, candidate *model.Candidate) (model.CandidateLabel, float64, error) {
		if candidate.RawAttributes["kind"] == "fictional" {
			return model.LabelFictional, 0.95, nil
		}
		return model.LabelRealPerson, 0.95, nil
	}
	structurer := func(ctx context.Context, candidate *model.Candidate) (*model.StructuredAttributes, error) {
		attrs := &model.StructuredAttributes{
			Name:     candidate.Name,
			Locality: candidate.RawAttributes["locality"],
			Confidence: model.FieldConfidence{
				model.FieldName: 0.9,
				model.FieldBorn: 0.9,
			},
		}
		if rawBorn := candidate.RawAttributes["born"]; rawBorn != "" {
			if born, err := model.ParseBirthDate(rawBorn); err == nil {
				attrs.Born = born
			}
		}
		return attrs, nil
	}
	return pipeline.NewPipeline(extractor, classifier, structurer)
}

// characterEmbedder maps text to folded character frequencies, so profiles
// sharing words come out close in cosine space. Good enough to demonstrate
// the similarity lookup without a model.
func characterEmbedder(text string) ([]float32, error) {
	embedding := make([]float32, embeddingDim)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			embedding[int(r-'a')%embeddingDim]++
		}
	}
	return embedding, nil
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	b, err := biograph.NewBiograph(dbConfig, embeddingDim)
	if err != nil {
		log.Fatalf("Failed to create biograph: %v", err)
	}
	defer b.Close()

	b.SetFetcher(&cannedFetcher{})
	pipe := cannedPipeline()
	pipe.SetEmbedder(characterEmbedder)
	b.SetPipeline(pipe)

	ctx := context.Background()

	// 1. Discovery run
	fmt.Println("=== 1. Discovery Run ===")
	config := model.DefaultRunConfig()
	config.Seeds = []string{"Johannes Kepler", "John Smith (explorer)"}
	config.MaxDepth = 1
	config.Workers = 1

	report, err := b.Run(ctx, config)
	if err != nil {
		log.Fatalf("Failed to run discovery: %v", err)
	}
	fmt.Printf("Processed %d documents, %d candidates\n", report.Documents, report.Candidates)
	for status, count := range report.EntitiesByStatus {
		fmt.Printf("  %v: %d\n", status, count)
	}

	// 2. Review queue
	fmt.Println("\n=== 2. Review Queue ===")
	queue, err := b.NeedsReview(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to list review queue: %v", err)
	}
	fmt.Printf("%d entities waiting for review:\n", len(queue))
	for _, entity := range queue {
		fmt.Printf("  %v  %v (possible matches: %d)\n", entity.ID, entity.Name, len(entity.ReviewRefs))
	}

	// 3. Similarity lookup for a queued entity
	fmt.Println("\n=== 3. Similar Entities ===")
	if len(queue) > 0 {
		reviewConfig := model.DefaultReviewConfig()
		reviewConfig.SimilarityThreshold = 0.0
		similar, err := b.SimilarEntities(ctx, queue[0].ID, &reviewConfig)
		if err != nil {
			log.Printf("Similarity lookup failed: %v", err)
		}
		for _, entity := range similar {
			fmt.Printf("  %.3f  %v [%v]\n", entity.Similarity, entity.Name, entity.Status)
		}
	}

	// 4. Loading the entities an ambiguous mention matched
	fmt.Println("\n=== 4. Referenced Entities ===")
	if len(queue) > 0 {
		referenced, err := b.Review.ReferencedEntities(ctx, queue[0])
		if err != nil {
			log.Printf("Loading referenced entities failed: %v", err)
		}
		for _, entity := range referenced {
			born := "unknown"
			if entity.Attributes.Born != nil {
				born = entity.Attributes.Born.String()
			}
			fmt.Printf("  %v [%v] born %v\n", entity.Name, entity.Status, born)
		}
	}

	// 5. Settling the queue: promote the first entry, reject the rest
	fmt.Println("\n=== 5. Promote and Reject ===")
	for i, entity := range queue {
		if i == 0 {
			promoted, err := b.PromoteEntity(ctx, entity.ID)
			if err != nil {
				log.Printf("Promotion failed: %v", err)
				continue
			}
			fmt.Printf("  Promoted %v to %v\n", promoted.Name, promoted.Status)
			continue
		}
		rejected, err := b.RejectEntity(ctx, entity.ID, "settled in example")
		if err != nil {
			log.Printf("Rejection failed: %v", err)
			continue
		}
		fmt.Printf("  Rejected %v (%v)\n", rejected.Name, rejected.RejectedReason)
	}

	// 6. Index type switching
	fmt.Println("\n=== 6. Changing Index Type ===")
	err = b.ChangeIndexType(ctx, "ivfflat", map[string]interface{}{
		"lists": 100,
	})
	if err != nil {
		log.Printf("Warning: Index change failed (this is okay for small datasets): %v", err)
	} else {
		fmt.Println("Successfully switched to IVFFlat index")
	}

	err = b.ChangeIndexType(ctx, "hnsw", map[string]interface{}{
		"m":               16,
		"ef_construction": 64,
	})
	if err != nil {
		log.Printf("Warning: Index change failed: %v", err)
	} else {
		fmt.Println("Successfully switched back to HNSW index")
	}

	fmt.Println("\n=== Advanced Example Completed Successfully! ===")
	fmt.Println("\nKey features demonstrated:")
	fmt.Println("✓ Discovery run over seeded articles")
	fmt.Println("✓ Promotion through multiple corroborating documents")
	fmt.Println("✓ Ambiguous mentions parked for review")
	fmt.Println("✓ Similarity lookup over profile embeddings")
	fmt.Println("✓ Promote / reject review decisions")
	fmt.Println("✓ Index type switching (HNSW / IVFFlat)")
}
