package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
	"github.com/siherrmann/biograph/sql"
)

// LinksDBHandlerFunctions defines the interface for Links database operations.
type LinksDBHandlerFunctions interface {
	InsertLink(link *model.DocumentLink) error
	InsertDocumentLinks(documentRID uuid.UUID, links []model.Link, depth int) error
	SelectLinksByDocument(documentRID uuid.UUID) ([]*model.DocumentLink, error)
	SelectLinksToTarget(target string, limit int) ([]*model.DocumentLink, error)
	DeleteLinksByDocument(documentRID uuid.UUID) error
}

// LinksDBHandler handles link-related database operations
type LinksDBHandler struct {
	db *helper.Database
}

// NewLinksDBHandler creates a new links database handler.
// It initializes the database connection and loads link-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewLinksDBHandler(db *helper.Database, force bool) (*LinksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	linksDbHandler := &LinksDBHandler{
		db: db,
	}

	err := sql.LoadLinksSql(linksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load links sql", err)
	}

	err = linksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized LinksDBHandler")

	return linksDbHandler, nil
}

// CreateTable creates the 'links' table in the database.
// If the table already exists, it does not create it again.
// The table references documents, so the documents table must exist first.
func (h *LinksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_links();`)
	if err != nil {
		log.Panicf("error initializing links table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table links")

	return nil
}

// InsertLink inserts an outbound link of a document (or updates it if the
// document already recorded the target)
func (h *LinksDBHandler) InsertLink(link *model.DocumentLink) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_link($1, $2, $3, $4)`,
		link.DocumentRID,
		link.Target,
		link.Relationship,
		link.Depth,
	)

	err := row.Scan(
		&link.ID,
		&link.DocumentRID,
		&link.Target,
		&link.Relationship,
		&link.Depth,
		&link.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// InsertDocumentLinks stores all outbound links of one fetched document.
// Depth is the depth the link targets would be crawled at.
func (h *LinksDBHandler) InsertDocumentLinks(documentRID uuid.UUID, links []model.Link, depth int) error {
	for _, link := range links {
		documentLink := &model.DocumentLink{
			DocumentRID:  documentRID,
			Target:       link.Target,
			Relationship: link.Relationship,
			Depth:        depth,
		}
		err := h.InsertLink(documentLink)
		if err != nil {
			return helper.NewError("insert link", err)
		}
	}
	return nil
}

// SelectLinksByDocument retrieves all stored links of a document
func (h *LinksDBHandler) SelectLinksByDocument(documentRID uuid.UUID) ([]*model.DocumentLink, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_links_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var links []*model.DocumentLink
	for rows.Next() {
		link := &model.DocumentLink{}
		err := rows.Scan(
			&link.ID,
			&link.DocumentRID,
			&link.Target,
			&link.Relationship,
			&link.Depth,
			&link.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		links = append(links, link)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return links, nil
}

// SelectLinksToTarget retrieves the most recent inbound references to an
// article title
func (h *LinksDBHandler) SelectLinksToTarget(target string, limit int) ([]*model.DocumentLink, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_links_to_target($1, $2)`,
		target,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var links []*model.DocumentLink
	for rows.Next() {
		link := &model.DocumentLink{}
		err := rows.Scan(
			&link.ID,
			&link.DocumentRID,
			&link.Target,
			&link.Relationship,
			&link.Depth,
			&link.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		links = append(links, link)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return links, nil
}

// DeleteLinksByDocument deletes all stored links of a document
func (h *LinksDBHandler) DeleteLinksByDocument(documentRID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_links_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
