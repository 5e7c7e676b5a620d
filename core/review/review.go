package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/database"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
)

// Engine provides review queue listings and duplicate adjudication over
// stored entities. It runs between discovery runs; the resolver never
// consults it.
type Engine struct {
	entities *database.EntitiesDBHandler
}

// NewEngine creates a new review engine
func NewEngine(entities *database.EntitiesDBHandler) *Engine {
	return &Engine{
		entities: entities,
	}
}

// NeedsReview lists the entities waiting for a reviewer: entities parked as
// needs_review plus entities of any other live status carrying field
// conflicts or a contested promotion.
func (e *Engine) NeedsReview(ctx context.Context, config *model.ReviewConfig) ([]*model.Entity, error) {
	if config == nil {
		defaults := model.DefaultReviewConfig()
		config = &defaults
	}

	entities, err := e.entities.SelectReviewQueue(config.Limit, config.Offset)
	if err != nil {
		return nil, err
	}

	return entities, nil
}

// SimilarEntities returns the stored entities closest to the given entity by
// profile embedding, nearest first, with Similarity set on each result. The
// entity itself is filtered out.
func (e *Engine) SimilarEntities(ctx context.Context, rid uuid.UUID, config *model.ReviewConfig) ([]*model.Entity, error) {
	if config == nil {
		defaults := model.DefaultReviewConfig()
		config = &defaults
	}

	entity, err := e.entities.SelectEntity(rid)
	if err != nil {
		return nil, err
	}
	if len(entity.Embedding) == 0 {
		return nil, helper.NewError("similarity lookup", fmt.Errorf("entity %v has no profile embedding", rid))
	}

	// Request one extra match because the entity matches itself exactly
	matches, err := e.entities.SelectSimilarEntities(entity.Embedding, config.SimilarTopK+1, config.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	results := make([]*model.Entity, 0, len(matches))
	for _, match := range matches {
		if match.ID == rid {
			continue
		}
		results = append(results, match)
	}
	if len(results) > config.SimilarTopK {
		results = results[:config.SimilarTopK]
	}

	return results, nil
}

// ReferencedEntities loads the entities an ambiguous candidate was matched
// against, so a reviewer sees the identities behind the review refs. Refs
// pointing at deleted entities are skipped.
func (e *Engine) ReferencedEntities(ctx context.Context, entity *model.Entity) ([]*model.Entity, error) {
	if entity == nil {
		return nil, helper.NewError("referenced entities", fmt.Errorf("entity is nil"))
	}

	var referenced []*model.Entity
	for _, ref := range entity.ReviewRefs {
		refEntity, err := e.entities.SelectEntity(ref)
		if err != nil {
			continue
		}
		referenced = append(referenced, refEntity)
	}

	return referenced, nil
}

// PromoteEntity applies a reviewer confirmation. Promotion settles any open
// field conflicts and the contested promotion marker, so the entity leaves
// the review queue.
func (e *Engine) PromoteEntity(ctx context.Context, rid uuid.UUID) (*model.Entity, error) {
	return e.entities.UpdateEntityStatus(rid, model.StatusConfirmed, "")
}

// RejectEntity applies a reviewer rejection with the given reason.
func (e *Engine) RejectEntity(ctx context.Context, rid uuid.UUID, reason string) (*model.Entity, error) {
	if reason == "" {
		reason = "rejected in review"
	}
	return e.entities.UpdateEntityStatus(rid, model.StatusRejected, reason)
}
