package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
	loadSql "github.com/siherrmann/biograph/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	InsertEntity(entity *model.Entity) error
	InsertEntities(entities []*model.Entity) error
	SelectEntity(rid uuid.UUID) (*model.Entity, error)
	SelectAllEntities(lastCreatedAt *time.Time, limit int) ([]*model.Entity, error)
	SelectEntitiesByStatus(status model.EntityStatus, limit int) ([]*model.Entity, error)
	SelectEntitiesBySearch(searchTerm string, limit int) ([]*model.Entity, error)
	SelectReviewQueue(limit int, offset int) ([]*model.Entity, error)
	SelectSimilarEntities(embedding []float32, limit int, threshold float64) ([]*model.Entity, error)
	UpdateEntityStatus(rid uuid.UUID, status model.EntityStatus, reason string) (*model.Entity, error)
	UpdateEntityEmbedding(rid uuid.UUID, embedding []float32) error
	DeleteEntity(rid uuid.UUID) error
}

// EntitiesDBHandler handles entity-related database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, embeddingDim int, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes and triggers.
func (h *EntitiesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables, triggers, and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// InsertEntity inserts a new entity (or updates the row if the rid exists)
func (h *EntitiesDBHandler) InsertEntity(entity *model.Entity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}

	attributesJSON, err := json.Marshal(entity.Attributes)
	if err != nil {
		return helper.NewError("marshaling attributes", err)
	}

	conflicts := entity.Conflicts
	if conflicts == nil {
		conflicts = []model.FieldConflict{}
	}
	conflictsJSON, err := json.Marshal(conflicts)
	if err != nil {
		return helper.NewError("marshaling conflicts", err)
	}

	var embeddingParam interface{}
	if len(entity.Embedding) > 0 {
		embeddingParam = pq.Array(entity.Embedding)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_entity($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entity.ID,
		entity.Name,
		pq.Array(entity.Aliases),
		attributesJSON,
		entity.Status,
		pq.Array(entity.Provenance),
		conflictsJSON,
		pq.Array(entity.ReviewRefs),
		entity.RejectedReason,
		embeddingParam,
		entity.Metadata,
	)

	err = scanEntityRow(row, entity)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// InsertEntities upserts a batch of entities in one transaction, so a flush
// either lands completely or not at all.
func (h *EntitiesDBHandler) InsertEntities(entities []*model.Entity) error {
	tx, err := h.db.Instance.Begin()
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer func() {
		// No-op after a successful commit
		_ = tx.Rollback()
	}()

	for _, entity := range entities {
		if entity.ID == uuid.Nil {
			entity.ID = uuid.New()
		}

		attributesJSON, err := json.Marshal(entity.Attributes)
		if err != nil {
			return helper.NewError("marshaling attributes", err)
		}

		conflicts := entity.Conflicts
		if conflicts == nil {
			conflicts = []model.FieldConflict{}
		}
		conflictsJSON, err := json.Marshal(conflicts)
		if err != nil {
			return helper.NewError("marshaling conflicts", err)
		}

		var embeddingParam interface{}
		if len(entity.Embedding) > 0 {
			embeddingParam = pq.Array(entity.Embedding)
		}

		row := tx.QueryRow(
			`SELECT * FROM insert_entity($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			entity.ID,
			entity.Name,
			pq.Array(entity.Aliases),
			attributesJSON,
			entity.Status,
			pq.Array(entity.Provenance),
			conflictsJSON,
			pq.Array(entity.ReviewRefs),
			entity.RejectedReason,
			embeddingParam,
			entity.Metadata,
		)

		err = scanEntityRow(row, entity)
		if err != nil {
			return helper.NewError("scan", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit transaction", err)
	}

	return nil
}

// SelectEntity retrieves an entity by RID
func (h *EntitiesDBHandler) SelectEntity(rid uuid.UUID) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity($1)`,
		rid,
	)

	err := scanEntityRow(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectAllEntities retrieves all entities with keyset pagination
func (h *EntitiesDBHandler) SelectAllEntities(lastCreatedAt *time.Time, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_all_entities($1, $2)`,
		lastCreatedAt,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntityRows(rows, false)
}

// SelectEntitiesByStatus retrieves entities with the given resolution status
func (h *EntitiesDBHandler) SelectEntitiesByStatus(status model.EntityStatus, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_status($1, $2)`,
		status,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntityRows(rows, false)
}

// SelectEntitiesBySearch searches entities by name or alias pattern
func (h *EntitiesDBHandler) SelectEntitiesBySearch(searchTerm string, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_entities($1, $2)`,
		searchTerm,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntityRows(rows, false)
}

// SelectReviewQueue retrieves entities waiting for a human decision, the ones
// parked for review and live ones that accumulated merge conflicts or had a
// promotion contested by a confirmed name holder.
func (h *EntitiesDBHandler) SelectReviewQueue(limit int, offset int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_review_queue($1, $2)`,
		limit,
		offset,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntityRows(rows, false)
}

// SelectSimilarEntities performs vector similarity search over entity profiles
func (h *EntitiesDBHandler) SelectSimilarEntities(embedding []float32, limit int, threshold float64) ([]*model.Entity, error) {
	embeddingVector := pgvector.NewVector(embedding)

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_similar_entities($1, $2, $3)`,
		embeddingVector,
		limit,
		threshold,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntityRows(rows, true)
}

// UpdateEntityStatus updates the resolution status of an entity. Promoting to
// confirmed settles open conflicts, rejecting records the reason.
func (h *EntitiesDBHandler) UpdateEntityStatus(rid uuid.UUID, status model.EntityStatus, reason string) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_entity_status($1, $2, $3)`,
		rid,
		status,
		reason,
	)

	err := scanEntityRow(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// UpdateEntityEmbedding updates the profile embedding of an entity
func (h *EntitiesDBHandler) UpdateEntityEmbedding(rid uuid.UUID, embedding []float32) error {
	embeddingVector := pgvector.NewVector(embedding)
	_, err := h.db.Instance.Exec(
		`SELECT update_entity_embedding($1, $2)`,
		rid,
		embeddingVector,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteEntity deletes an entity by RID
func (h *EntitiesDBHandler) DeleteEntity(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_entity($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// scanEntityRow scans a single entity row including the JSONB columns.
func scanEntityRow(row *sql.Row, entity *model.Entity) error {
	var attributesJSON, conflictsJSON []byte
	err := row.Scan(
		&entity.ID,
		&entity.Name,
		pq.Array(&entity.Aliases),
		&attributesJSON,
		&entity.Status,
		pq.Array(&entity.Provenance),
		&conflictsJSON,
		pq.Array(&entity.ReviewRefs),
		&entity.RejectedReason,
		pq.Array(&entity.Embedding),
		&entity.Metadata,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(attributesJSON, &entity.Attributes); err != nil {
		return helper.NewError("unmarshaling attributes", err)
	}
	if err := json.Unmarshal(conflictsJSON, &entity.Conflicts); err != nil {
		return helper.NewError("unmarshaling conflicts", err)
	}

	return nil
}

// scanEntityRows scans a set of entity rows. Similarity queries return an
// extra similarity column after the regular entity columns.
func scanEntityRows(rows *sql.Rows, withSimilarity bool) ([]*model.Entity, error) {
	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}

		var attributesJSON, conflictsJSON []byte
		dest := []interface{}{
			&entity.ID,
			&entity.Name,
			pq.Array(&entity.Aliases),
			&attributesJSON,
			&entity.Status,
			pq.Array(&entity.Provenance),
			&conflictsJSON,
			pq.Array(&entity.ReviewRefs),
			&entity.RejectedReason,
			pq.Array(&entity.Embedding),
			&entity.Metadata,
			&entity.CreatedAt,
			&entity.UpdatedAt,
		}
		if withSimilarity {
			dest = append(dest, &entity.Similarity)
		}

		err := rows.Scan(dest...)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		if err := json.Unmarshal(attributesJSON, &entity.Attributes); err != nil {
			return nil, helper.NewError("unmarshaling attributes", err)
		}
		if err := json.Unmarshal(conflictsJSON, &entity.Conflicts); err != nil {
			return nil, helper.NewError("unmarshaling conflicts", err)
		}

		entities = append(entities, entity)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}
