package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph"
	"github.com/siherrmann/biograph/core/pipeline"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
)

// Canned articles so the example runs without network access or an API key.
// The live example replaces these with the real Wikipedia and Anthropic.
var articles = map[string]*model.Document{
	"Ada Lovelace": {
		Source:  "https://en.wikipedia.org/wiki/Ada_Lovelace",
		Content: "Augusta Ada King, Countess of Lovelace, was an English mathematician who worked with Charles Babbage on the Analytical Engine.",
		Links:   []model.Link{{Target: "Analytical Engine"}},
	},
	"Charles Babbage": {
		Source:  "https://en.wikipedia.org/wiki/Charles_Babbage",
		Content: "Charles Babbage was an English polymath who originated the concept of a digital programmable computer. Ada Lovelace published notes on his Analytical Engine.",
	},
	"Analytical Engine": {
		Source:  "https://en.wikipedia.org/wiki/Analytical_Engine",
		Content: "The Analytical Engine was a proposed digital mechanical general-purpose computer designed by Charles Babbage.",
	},
}

// Canned person mentions per article, standing in for the LLM extractor.
var mentions = map[string][]*model.Candidate{
	"Ada Lovelace": {
		{
			Name:          "Ada Lovelace",
			RawAttributes: map[string]string{"born": "1815-12-10", "locality": "London"},
			Links:         []model.Link{{Target: "Charles Babbage", Relationship: "collaborator"}},
			Confidence:    0.9,
		},
	},
	"Charles Babbage": {
		{
			Name:          "Charles Babbage",
			RawAttributes: map[string]string{"born": "1791-12-26", "locality": "London"},
			Confidence:    0.9,
		},
		{
			Name:          "Ada Lovelace",
			RawAttributes: map[string]string{"born": "1815-12-10", "alias": "Augusta Ada King"},
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

// cannedPipeline builds a pipeline from the canned mentions. Everything with a
// "kind" of fictional is labeled fictional, the structurer parses the raw
// attributes the way the default LLM structurer would.
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
		if alias := candidate.RawAttributes["alias"]; alias != "" {
			attrs.Aliases = []string{alias}
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

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
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

	b, err := biograph.NewBiograph(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create biograph: %v", err)
	}
	defer b.Close()

	// Wire the canned collaborators instead of Wikipedia and Anthropic
	b.SetFetcher(&cannedFetcher{})
	b.SetPipeline(cannedPipeline())

	// Run a small discovery crawl
	config := model.DefaultRunConfig()
	config.Seeds = []string{"Ada Lovelace"}
	config.MaxDepth = 2
	config.Workers = 1

	fmt.Println("Running discovery crawl...")
	report, err := b.Run(context.Background(), config)
	if err != nil {
		log.Fatalf("Failed to run discovery: %v", err)
	}

	fmt.Printf("Run finished (%v): %d documents, %d candidates\n",
		report.State, report.Documents, report.Candidates)
	for status, count := range report.EntitiesByStatus {
		fmt.Printf("  %v: %d\n", status, count)
	}

	// Ada Lovelace appears in two documents, so she comes out confirmed
	results, err := b.Entities.SelectEntitiesBySearch("Ada Lovelace", 5)
	if err != nil {
		log.Fatalf("Failed to search entities: %v", err)
	}

	fmt.Printf("\nFound %d stored entities for 'Ada Lovelace':\n", len(results))
	for _, entity := range results {
		fmt.Printf("\n--- %s [%s] ---\n", entity.Name, entity.Status)
		if len(entity.Aliases) > 0 {
			fmt.Printf("Aliases: %v\n", entity.Aliases)
		}
		if entity.Attributes.Born != nil {
			fmt.Printf("Born: %s\n", entity.Attributes.Born)
		}
		if entity.Attributes.Locality != "" {
			fmt.Printf("From: %s\n", entity.Attributes.Locality)
		}
		fmt.Printf("Seen in %d documents\n", len(entity.Provenance))
	}

	fmt.Println("\nBasic example completed successfully!")
}
