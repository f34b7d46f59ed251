package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqlite"
)

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `id, module_type, company_id, owner_id, status, title, amount, attributes, created_at, updated_at`

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	attributes, err := json.Marshal(doc.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	if doc.Attributes == nil {
		attributes = []byte("{}")
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = entity.StatusDraft
	}

	query := `
		INSERT INTO documents (
			module_type, company_id, owner_id, status, title, amount, attributes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		doc.ModuleType,
		doc.CompanyID,
		doc.OwnerID,
		doc.Status,
		doc.Title,
		doc.Amount,
		string(attributes),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	doc.ID = id
	return nil
}

// Load retrieves a document by ID
func (r *DocumentRepository) Load(ctx context.Context, id int64) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`

	doc, err := scanDocument(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to load document", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// SetStatus moves the document from one status to another
func (r *DocumentRepository) SetStatus(ctx context.Context, id int64, from, to string) error {
	query := `UPDATE documents SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		r.logger.Error("Failed to set document status", zap.Int64("id", id), zap.String("to", to), zap.Error(err))
		return fmt.Errorf("failed to set document status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: document %d is no longer %s", apperr.ErrConcurrentUpdate, id, from)
	}
	return nil
}

// ListByOwner returns the owner's documents, newest first
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, ownerID)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var doc entity.Document
	var attributes string

	if err := row.Scan(
		&doc.ID,
		&doc.ModuleType,
		&doc.CompanyID,
		&doc.OwnerID,
		&doc.Status,
		&doc.Title,
		&doc.Amount,
		&attributes,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if attributes != "" {
		if err := json.Unmarshal([]byte(attributes), &doc.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	return &doc, nil
}

var _ port.DocumentRepository = (*DocumentRepository)(nil)
