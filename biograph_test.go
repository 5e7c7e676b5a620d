package biograph

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/core/pipeline"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// All tests share one entities table, so the embedding dimension has to match
// across the package.
const testEmbeddingDim = 4

// testEmbedder creates a simple deterministic embedder for testing
func testEmbedder(dimension int) pipeline.EmbedFunc {
	return func(text string) ([]float32, error) {
		embedding := make([]float32, dimension)
		for i := 0; i < dimension; i++ {
			embedding[i] = float32((len(text)+i)%100) / 100.0
		}
		return embedding, nil
	}
}

// fakeFetcher serves canned articles and stamps a fresh RID per fetch the way
// the wiki client does. It records every fetch for order and revisit checks.
type fakeFetcher struct {
	mu       sync.Mutex
	articles map[string]*model.Document
	fetched  map[string]*model.Document
	order    []string
}

func newFakeFetcher(articles map[string]*model.Document) *fakeFetcher {
	return &fakeFetcher{
		articles: articles,
		fetched:  map[string]*model.Document{},
	}
}

func (f *fakeFetcher) FetchArticle(ctx context.Context, title string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	article, ok := f.articles[title]
	if !ok {
		return nil, fmt.Errorf("article %v not found", title)
	}

	document := *article
	document.RID = uuid.New()
	document.Title = title
	f.fetched[title] = &document
	f.order = append(f.order, title)
	return &document, nil
}

// testPipeline builds a pipeline with deterministic stages. The extractor
// serves canned candidates per title, the classifier reads the "kind" raw
// attribute and the structurer parses "born", "locality" and "alias".
func testPipeline(candidatesByTitle map[string][]*model.Candidate) *pipeline.Pipeline {
	extractor := func(ctx context.Context, document *model.Document) ([]*model.Candidate, error) {
		candidates := []*model.Candidate{}
		for _, candidate := range candidatesByTitle[document.Title] {
			copied := *candidate
			candidates = append(candidates, &copied)
		}
		return candidates, nil
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
			born, err := model.ParseBirthDate(rawBorn)
			if err == nil {
				attrs.Born = born
			}
		}
		return attrs, nil
	}

	return pipeline.NewPipeline(extractor, classifier, structurer)
}

func initBiograph(t *testing.T) *Biograph {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	b, err := NewBiograph(dbConfig, testEmbeddingDim)
	require.NoError(t, err, "failed to create biograph")
	require.NotNil(t, b, "expected biograph to be non-nil")

	t.Cleanup(func() {
		b.Close()
	})

	return b
}

func TestNewBiograph(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err)

	t.Run("Valid call NewBiograph", func(t *testing.T) {
		b, err := NewBiograph(dbConfig, testEmbeddingDim)
		require.NoError(t, err, "Expected NewBiograph to not return an error")
		require.NotNil(t, b, "Expected NewBiograph to return a non-nil instance")
		assert.NotNil(t, b.DB, "Expected biograph to have a database instance")
		assert.NotNil(t, b.Documents, "Expected biograph to have documents handler")
		assert.NotNil(t, b.Links, "Expected biograph to have links handler")
		assert.NotNil(t, b.Entities, "Expected biograph to have entities handler")
		assert.NotNil(t, b.Review, "Expected biograph to have review engine")
		assert.Nil(t, b.Pipeline, "Expected pipeline to be nil initially")
		assert.Nil(t, b.Fetcher, "Expected fetcher to be nil initially")

		// Cleanup
		err = b.Close()
		assert.NoError(t, err, "Expected Close to not return an error")
	})

	t.Run("Biograph with nil database handles Close gracefully", func(t *testing.T) {
		b := &Biograph{}

		err := b.Close()
		assert.NoError(t, err, "Expected Close to handle nil DB gracefully")
	})
}

func TestSetPipeline(t *testing.T) {
	b := initBiograph(t)

	t.Run("Set pipeline successfully", func(t *testing.T) {
		pipe := testPipeline(map[string][]*model.Candidate{})

		b.SetPipeline(pipe)

		assert.NotNil(t, b.Pipeline, "Expected pipeline to be set")
		assert.Equal(t, pipe, b.Pipeline, "Expected pipeline to match")
	})

	t.Run("Set pipeline to nil", func(t *testing.T) {
		b.SetPipeline(nil)

		assert.Nil(t, b.Pipeline, "Expected pipeline to be nil")
	})

	t.Run("Replace existing pipeline", func(t *testing.T) {
		pipe1 := testPipeline(map[string][]*model.Candidate{})
		pipe2 := testPipeline(map[string][]*model.Candidate{})

		b.SetPipeline(pipe1)
		assert.Equal(t, pipe1, b.Pipeline, "Expected first pipeline to be set")

		b.SetPipeline(pipe2)
		assert.Equal(t, pipe2, b.Pipeline, "Expected second pipeline to replace first")
	})
}

func TestUseDefaultPipeline(t *testing.T) {
	b := initBiograph(t)

	t.Run("Error on missing api key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		err := b.UseDefaultPipeline("", model.DefaultRunConfig())
		assert.Error(t, err, "Expected error without an api key")
	})

	t.Run("Sets up pipeline and client with explicit key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		err := b.UseDefaultPipeline("test-key", model.DefaultRunConfig())
		require.NoError(t, err, "Expected UseDefaultPipeline to not return an error")
		assert.NotNil(t, b.LLM, "Expected llm client to be set")
		require.NotNil(t, b.Pipeline, "Expected pipeline to be set")
		assert.NotNil(t, b.Pipeline.Extractor, "Expected extractor to be set")
		assert.NotNil(t, b.Pipeline.Classifier, "Expected classifier to be set")
		assert.NotNil(t, b.Pipeline.Structurer, "Expected structurer to be set")
		assert.Nil(t, b.Pipeline.Embedder, "Expected embedder to stay unset")
	})
}

func TestSaveDocument(t *testing.T) {
	b := initBiograph(t)
	ctx := context.Background()

	t.Run("Saves document with its outbound links", func(t *testing.T) {
		document := &model.Document{
			RID:    uuid.New(),
			Title:  "Ada Lovelace",
			Source: "https://en.wikipedia.org/wiki/Ada_Lovelace",
			Depth:  1,
			Links: []model.Link{
				{Target: "Charles Babbage", Relationship: "collaborator"},
				{Target: "Analytical Engine"},
			},
			Metadata: model.Metadata{},
		}

		err := b.SaveDocument(ctx, document)
		assert.NoError(t, err, "Expected SaveDocument to not return an error")
		assert.Greater(t, document.ID, int64(0), "Expected document ID to be set")

		links, err := b.Links.SelectLinksByDocument(document.RID)
		require.NoError(t, err)
		require.Len(t, links, 2, "Expected both links to be stored")
		assert.Equal(t, "Charles Babbage", links[0].Target, "Expected links in insertion order")
		assert.Equal(t, "collaborator", links[0].Relationship, "Expected relationship to be stored")

		// Cleanup
		b.Documents.DeleteDocument(document.RID)
	})

	t.Run("Saves document without links", func(t *testing.T) {
		document := &model.Document{
			RID:      uuid.New(),
			Title:    "Lonely Article",
			Source:   "https://en.wikipedia.org/wiki/Lonely_Article",
			Metadata: model.Metadata{},
		}

		err := b.SaveDocument(ctx, document)
		assert.NoError(t, err, "Expected SaveDocument to not return an error")

		links, err := b.Links.SelectLinksByDocument(document.RID)
		require.NoError(t, err)
		assert.Empty(t, links, "Expected no links for document without links")

		// Cleanup
		b.Documents.DeleteDocument(document.RID)
	})
}

func TestSaveEntities(t *testing.T) {
	b := initBiograph(t)
	ctx := context.Background()

	t.Run("Saves snapshot without embedder", func(t *testing.T) {
		entity := &model.Entity{
			ID:         uuid.New(),
			Name:       "Ada Lovelace",
			Status:     model.StatusConfirmed,
			Provenance: []uuid.UUID{uuid.New(), uuid.New()},
		}

		err := b.SaveEntities(ctx, []*model.Entity{entity})
		assert.NoError(t, err, "Expected SaveEntities to not return an error")

		stored, err := b.Entities.SelectEntity(entity.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", stored.Name, "Expected entity name to be stored")
		assert.Empty(t, stored.Embedding, "Expected no embedding without an embedder")

		// Cleanup
		b.Entities.DeleteEntity(entity.ID)
	})

	t.Run("Saves snapshot with profile embeddings", func(t *testing.T) {
		pipe := testPipeline(map[string][]*model.Candidate{})
		pipe.SetEmbedder(testEmbedder(testEmbeddingDim))
		b.SetPipeline(pipe)

		confirmed := &model.Entity{
			ID:     uuid.New(),
			Name:   "Johannes Kepler",
			Status: model.StatusConfirmed,
		}
		rejected := &model.Entity{
			ID:             uuid.New(),
			Name:           "Sherlock Holmes",
			Status:         model.StatusRejected,
			RejectedReason: "fictional",
		}

		err := b.SaveEntities(ctx, []*model.Entity{confirmed, rejected})
		assert.NoError(t, err, "Expected SaveEntities to not return an error")

		storedConfirmed, err := b.Entities.SelectEntity(confirmed.ID)
		require.NoError(t, err)
		assert.Len(t, storedConfirmed.Embedding, testEmbeddingDim, "Expected confirmed entity to get a profile embedding")

		storedRejected, err := b.Entities.SelectEntity(rejected.ID)
		require.NoError(t, err)
		assert.Empty(t, storedRejected.Embedding, "Expected rejected entity to stay unembedded")

		// Cleanup
		b.SetPipeline(nil)
		b.Entities.DeleteEntity(confirmed.ID)
		b.Entities.DeleteEntity(rejected.ID)
	})
}

func TestRun(t *testing.T) {
	b := initBiograph(t)
	ctx := context.Background()

	articles := map[string]*model.Document{
		"Ada Lovelace": {
			Source:   "https://en.wikipedia.org/wiki/Ada_Lovelace",
			Content:  "Ada Lovelace worked with Charles Babbage on the Analytical Engine.",
			Links:    []model.Link{{Target: "Analytical Engine"}},
			Metadata: model.Metadata{},
		},
		"Charles Babbage": {
			Source:   "https://en.wikipedia.org/wiki/Charles_Babbage",
			Content:  "Charles Babbage designed the Difference Engine. Ada Lovelace wrote about his work.",
			Metadata: model.Metadata{},
		},
		"Analytical Engine": {
			Source:   "https://en.wikipedia.org/wiki/Analytical_Engine",
			Content:  "The Analytical Engine was a proposed mechanical computer.",
			Metadata: model.Metadata{},
		},
		"Difference Engine": {
			Source:   "https://en.wikipedia.org/wiki/Difference_Engine",
			Content:  "The Difference Engine was an automatic mechanical calculator.",
			Metadata: model.Metadata{},
		},
	}

	candidates := map[string][]*model.Candidate{
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
				RawAttributes: map[string]string{"born": "1791-12-26"},
				Links:         []model.Link{{Target: "Difference Engine"}},
				Confidence:    0.9,
			},
			{
				Name:          "Ada Lovelace",
				RawAttributes: map[string]string{"born": "1815-12-10", "alias": "Augusta Ada King"},
				Links:         []model.Link{{Target: "Ada Lovelace"}},
				Confidence:    0.9,
			},
			{
				Name:          "Count Dracula",
				RawAttributes: map[string]string{"kind": "fictional"},
				Confidence:    0.9,
			},
		},
	}

	config := model.DefaultRunConfig()
	config.Seeds = []string{"Ada Lovelace"}
	config.MaxDepth = 2
	config.MaxDocuments = 10
	config.MaxEntities = 50
	config.PromoteThreshold = 2
	config.Workers = 1
	config.CallTimeout = 5 * time.Second

	t.Run("Error when pipeline not set", func(t *testing.T) {
		_, err := b.Run(ctx, config)
		assert.Error(t, err, "Expected error when pipeline not set")
		assert.Contains(t, err.Error(), "pipeline not set", "Expected specific error message")
	})

	fetcher := newFakeFetcher(articles)
	b.SetFetcher(fetcher)
	b.SetPipeline(testPipeline(candidates))

	report, err := b.Run(ctx, config)
	require.NoError(t, err, "Expected Run to not return an error")
	require.NotNil(t, report, "Expected Run to return a report")

	t.Run("Crawl follows priority order and never revisits", func(t *testing.T) {
		expected := []string{"Ada Lovelace", "Charles Babbage", "Difference Engine", "Analytical Engine"}
		assert.Equal(t, expected, fetcher.order, "Expected person discovered links to be crawled before document level links")
	})

	t.Run("Report sums up the run", func(t *testing.T) {
		assert.Equal(t, model.StateDone, report.State, "Expected run to finish normally")
		assert.Equal(t, 4, report.Documents, "Expected all reachable documents to be processed")
		assert.Equal(t, 4, report.Candidates, "Expected every candidate to be counted")
		assert.Empty(t, report.Failures, "Expected no failures")
		assert.Equal(t, 0, report.FrontierRemaining, "Expected the frontier to be exhausted")
		assert.Equal(t, 1, report.EntitiesByStatus[model.StatusConfirmed], "Expected one confirmed entity")
		assert.Equal(t, 1, report.EntitiesByStatus[model.StatusCandidate], "Expected one candidate entity")
		assert.Equal(t, 1, report.EntitiesByStatus[model.StatusRejected], "Expected one rejected entity")
	})

	t.Run("Mentions in two documents promote the entity", func(t *testing.T) {
		results, err := b.Entities.SelectEntitiesBySearch("Ada Lovelace", 10)
		require.NoError(t, err)
		require.NotEmpty(t, results, "Expected Ada Lovelace to be persisted")

		ada := results[0]
		assert.Equal(t, model.StatusConfirmed, ada.Status, "Expected Ada Lovelace to be confirmed after two documents")
		assert.Len(t, ada.Provenance, 2, "Expected provenance from both documents")
		assert.Contains(t, ada.Aliases, "Augusta Ada King", "Expected alias from the second document")
		require.NotNil(t, ada.Attributes.Born, "Expected birth date to be merged")
		assert.Equal(t, "1815-12-10", ada.Attributes.Born.String(), "Expected the full birth date")
	})

	t.Run("Single mention stays a candidate", func(t *testing.T) {
		results, err := b.Entities.SelectEntitiesBySearch("Charles Babbage", 10)
		require.NoError(t, err)
		require.NotEmpty(t, results, "Expected Charles Babbage to be persisted")
		assert.Equal(t, model.StatusCandidate, results[0].Status, "Expected single mention entity to stay a candidate")
	})

	t.Run("Fictional mention is rejected with a reason", func(t *testing.T) {
		results, err := b.Entities.SelectEntitiesBySearch("Count Dracula", 10)
		require.NoError(t, err)
		require.NotEmpty(t, results, "Expected the rejected mention to be persisted")
		assert.Equal(t, model.StatusRejected, results[0].Status, "Expected fictional mention to be rejected")
		assert.Equal(t, "fictional", results[0].RejectedReason, "Expected the rejection reason to be recorded")
	})

	t.Run("Documents and their links are persisted", func(t *testing.T) {
		adaDocument := fetcher.fetched["Ada Lovelace"]
		require.NotNil(t, adaDocument, "Expected Ada Lovelace to have been fetched")

		stored, err := b.Documents.SelectDocument(adaDocument.RID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", stored.Title, "Expected document title to be stored")
		assert.Equal(t, 0, stored.Depth, "Expected seed document at depth zero")

		links, err := b.Links.SelectLinksByDocument(adaDocument.RID)
		require.NoError(t, err)
		require.Len(t, links, 1, "Expected the document level link to be stored")
		assert.Equal(t, "Analytical Engine", links[0].Target, "Expected the unattributed link target")
	})

	// Cleanup
	for _, status := range []model.EntityStatus{model.StatusConfirmed, model.StatusCandidate, model.StatusRejected} {
		entities, err := b.Entities.SelectEntitiesByStatus(status, 100)
		require.NoError(t, err)
		for _, entity := range entities {
			b.Entities.DeleteEntity(entity.ID)
		}
	}
	for _, document := range fetcher.fetched {
		b.Documents.DeleteDocument(document.RID)
	}
}

func TestReviewDelegation(t *testing.T) {
	b := initBiograph(t)
	ctx := context.Background()

	// Create an entity waiting for review
	parked := &model.Entity{
		ID:     uuid.New(),
		Name:   "John Smith",
		Status: model.StatusNeedsReview,
		Conflicts: []model.FieldConflict{
			{Field: model.FieldLocality, Value: "Boston", Confidence: 0.6, DocumentRID: uuid.New()},
		},
	}
	err := b.Entities.InsertEntity(parked)
	require.NoError(t, err)

	t.Run("NeedsReview lists the entity", func(t *testing.T) {
		results, err := b.NeedsReview(ctx, nil)
		assert.NoError(t, err, "Expected NeedsReview to not return an error")

		ids := []uuid.UUID{}
		for _, entity := range results {
			ids = append(ids, entity.ID)
		}
		assert.Contains(t, ids, parked.ID, "Expected parked entity in the review queue")
	})

	t.Run("PromoteEntity confirms it", func(t *testing.T) {
		promoted, err := b.PromoteEntity(ctx, parked.ID)
		assert.NoError(t, err, "Expected PromoteEntity to not return an error")
		assert.Equal(t, model.StatusConfirmed, promoted.Status, "Expected promoted entity to be confirmed")
		assert.Empty(t, promoted.Conflicts, "Expected promotion to settle conflicts")
	})

	t.Run("RejectEntity records the decision", func(t *testing.T) {
		rejected, err := b.RejectEntity(ctx, parked.ID, "duplicate of another entity")
		assert.NoError(t, err, "Expected RejectEntity to not return an error")
		assert.Equal(t, model.StatusRejected, rejected.Status, "Expected rejected status")
		assert.Equal(t, "duplicate of another entity", rejected.RejectedReason, "Expected rejection reason")
	})

	// Cleanup
	b.Entities.DeleteEntity(parked.ID)
}
