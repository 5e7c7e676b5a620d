package biograph

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/core/engine"
	"github.com/siherrmann/biograph/core/frontier"
	"github.com/siherrmann/biograph/core/pipeline"
	"github.com/siherrmann/biograph/core/resolver"
	"github.com/siherrmann/biograph/core/review"
	"github.com/siherrmann/biograph/database"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/llm"
	"github.com/siherrmann/biograph/model"
	loadSql "github.com/siherrmann/biograph/sql"
	"github.com/siherrmann/biograph/wiki"
)

// Biograph provides a unified interface to discovery runs, review and all
// database handlers
type Biograph struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Links     *database.LinksDBHandler
	Entities  *database.EntitiesDBHandler
	Fetcher   engine.Fetcher     // Article source, defaults to the English Wikipedia
	LLM       *llm.Client        // Extraction collaborator, set by UseDefaultPipeline
	Pipeline  *pipeline.Pipeline // Extraction pipeline for discovery runs
	Review    *review.Engine     // Review engine over stored entities
	// Logging
	log *slog.Logger
}

// NewBiograph creates a new Biograph instance with all handlers initialized
func NewBiograph(config *helper.DatabaseConfiguration, embeddingDim int) (*Biograph, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("biograph", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (documents first, links
	// reference them). force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	links, err := database.NewLinksDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create links handler", err)
	}

	entities, err := database.NewEntitiesDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	return &Biograph{
		DB:        db,
		Documents: documents,
		Links:     links,
		Entities:  entities,
		Review:    review.NewEngine(entities),
		log:       logger,
	}, nil
}

// Close closes the database connection
func (b *Biograph) Close() error {
	if b.DB != nil && b.DB.Instance != nil {
		return b.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the extraction pipeline used by discovery runs
func (b *Biograph) SetPipeline(pipe *pipeline.Pipeline) {
	b.Pipeline = pipe
}

// SetFetcher sets the article source for discovery runs
func (b *Biograph) SetFetcher(fetcher engine.Fetcher) {
	b.Fetcher = fetcher
}

// UseDefaultPipeline sets up the default Anthropic backed extraction pipeline.
// Retries, repair retries and the call timeout are taken from the run
// configuration. Long articles are extracted in windows.
func (b *Biograph) UseDefaultPipeline(apiKey string, config model.RunConfig) error {
	client, err := llm.NewClient(apiKey, config.Retries, config.RepairRetries, config.CallTimeout)
	if err != nil {
		return helper.NewError("create llm client", err)
	}

	b.LLM = client
	b.Pipeline = pipeline.NewPipeline(
		pipeline.WindowedExtractor(pipeline.DefaultExtractor(client), 0),
		pipeline.DefaultClassifier(client),
		pipeline.DefaultStructurer(client),
	)
	return nil
}

// UseProfileEmbedder attaches the default sentence transformer embedder so
// entity snapshots are written with profile embeddings for review similarity.
// This uses the all-MiniLM-L6-v2 model (384 dimensions).
func (b *Biograph) UseProfileEmbedder() error {
	if b.Pipeline == nil {
		return helper.NewError("attach profile embedder", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	embedder, err := pipeline.DefaultProfileEmbedder()
	if err != nil {
		return helper.NewError("create profile embedder", err)
	}

	b.Pipeline.SetEmbedder(embedder)
	return nil
}

// Run crawls from the configured seeds, resolves the discovered person
// mentions into entities and persists documents, links and the final entity
// snapshot. Every run works on a fresh resolver and frontier, stored entities
// from earlier runs are not loaded back.
func (b *Biograph) Run(ctx context.Context, config model.RunConfig) (*model.RunReport, error) {
	if b.Pipeline == nil {
		return nil, helper.NewError("run discovery", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	if b.Fetcher == nil {
		b.Fetcher = wiki.NewClient("", config.Retries, config.CallTimeout)
	}

	res := resolver.NewResolver(config.PromoteThreshold)
	front := frontier.NewFrontier(config.MaxDepth)
	eng := engine.NewEngine(b.Fetcher, b.Pipeline, res, front, b, config, b.log)

	return eng.Run(ctx)
}

// SaveDocument persists a fetched document and its outbound links. Together
// with SaveEntities it makes Biograph the sink of the discovery engine.
func (b *Biograph) SaveDocument(ctx context.Context, document *model.Document) error {
	err := b.Documents.InsertDocument(document)
	if err != nil {
		return helper.NewError("insert document", err)
	}

	err = b.Links.InsertDocumentLinks(document.RID, document.Links, document.Depth)
	if err != nil {
		return helper.NewError("insert document links", err)
	}
	return nil
}

// SaveEntities persists an entity snapshot in one batch. When a profile
// embedder is attached, entities are written with an embedding computed from
// the same profile rendering the similarity search uses. Rejected entities
// carry no attributes worth embedding and are skipped.
func (b *Biograph) SaveEntities(ctx context.Context, entities []*model.Entity) error {
	if b.Pipeline != nil && b.Pipeline.Embedder != nil {
		for _, entity := range entities {
			if len(entity.Embedding) > 0 || entity.Status == model.StatusRejected {
				continue
			}
			embedding, err := b.Pipeline.Embedder(pipeline.EntityProfile(entity))
			if err != nil {
				b.log.Warn("Embedding entity profile failed", slog.String("name", entity.Name), slog.String("error", err.Error()))
				continue
			}
			entity.Embedding = embedding
		}
	}

	err := b.Entities.InsertEntities(entities)
	if err != nil {
		return helper.NewError("insert entities", err)
	}
	return nil
}

// NeedsReview lists the entities waiting for a reviewer
func (b *Biograph) NeedsReview(ctx context.Context, config *model.ReviewConfig) ([]*model.Entity, error) {
	return b.Review.NeedsReview(ctx, config)
}

// SimilarEntities returns stored entities close to the given one by profile
// embedding, for duplicate adjudication
func (b *Biograph) SimilarEntities(ctx context.Context, rid uuid.UUID, config *model.ReviewConfig) ([]*model.Entity, error) {
	return b.Review.SimilarEntities(ctx, rid, config)
}

// PromoteEntity applies a reviewer confirmation
func (b *Biograph) PromoteEntity(ctx context.Context, rid uuid.UUID) (*model.Entity, error) {
	return b.Review.PromoteEntity(ctx, rid)
}

// RejectEntity applies a reviewer rejection
func (b *Biograph) RejectEntity(ctx context.Context, rid uuid.UUID, reason string) (*model.Entity, error) {
	return b.Review.RejectEntity(ctx, rid, reason)
}

// ChangeIndexType changes the entity vector index type between HNSW and IVFFlat
func (b *Biograph) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return b.Entities.ChangeIndexType(ctx, indexType, params)
}
