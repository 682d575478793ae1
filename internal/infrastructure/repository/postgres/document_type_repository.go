package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

const documentTypeTable = "document_types"

var documentTypeColumns = []string{
	"id",
	"name",
	"category",
	"required",
	"accepted_formats",
	"max_size_pdf",
	"max_size_image",
	"description",
	"created_at",
	"updated_at",
}

type documentTypeRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Category        string    `db:"category"`
	Required        bool      `db:"required"`
	AcceptedFormats []byte    `db:"accepted_formats"`
	MaxSizePDF      int64     `db:"max_size_pdf"`
	MaxSizeImage    int64     `db:"max_size_image"`
	Description     string    `db:"description"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r documentTypeRow) toDomain() (domain.DocumentType, error) {
	var formats []string
	if len(r.AcceptedFormats) > 0 {
		if err := json.Unmarshal(r.AcceptedFormats, &formats); err != nil {
			return domain.DocumentType{}, fmt.Errorf("unmarshal accepted formats for %s: %w", r.ID, err)
		}
	}
	return domain.DocumentType{
		ID:              r.ID,
		Name:            r.Name,
		Category:        domain.DocumentCategory(r.Category),
		Required:        r.Required,
		AcceptedFormats: formats,
		MaxSizePDF:      r.MaxSizePDF,
		MaxSizeImage:    r.MaxSizeImage,
		Description:     r.Description,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

type DocumentTypeRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentTypeRepository(db *sql.DB) *DocumentTypeRepository {
	return &DocumentTypeRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentTypeRepository) GetByID(ctx context.Context, id string) (*domain.DocumentType, error) {
	query, args, err := psql().
		Select(documentTypeColumns...).
		From(documentTypeTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get document type: %w", err)
	}

	var row documentTypeRow
	if err := sqlscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, domain.WrapError(domain.ErrDocumentTypeNotFound, "get document type", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("select document type: %w", err)
	}
	docType, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &docType, nil
}

func (r *DocumentTypeRepository) List(ctx context.Context) ([]domain.DocumentType, error) {
	query, args, err := psql().
		Select(documentTypeColumns...).
		From(documentTypeTable).
		OrderBy("category", "name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list document types: %w", err)
	}

	var rows []documentTypeRow
	if err := sqlscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select document types: %w", err)
	}
	out := make([]domain.DocumentType, 0, len(rows))
	for _, row := range rows {
		docType, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, docType)
	}
	return out, nil
}

// Upsert inserts a document type or replaces every editable column of an
// existing one. created_at is kept from the first insert.
func (r *DocumentTypeRepository) Upsert(ctx context.Context, docType *domain.DocumentType) error {
	if !docType.Category.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "upsert document type", fmt.Errorf("unknown category %q", docType.Category))
	}
	formats, err := json.Marshal(docType.AcceptedFormats)
	if err != nil {
		return fmt.Errorf("marshal accepted formats: %w", err)
	}
	now := r.now()
	if docType.CreatedAt.IsZero() {
		docType.CreatedAt = now
	}
	docType.UpdatedAt = now

	query, args, err := psql().
		Insert(documentTypeTable).
		Columns(documentTypeColumns...).
		Values(
			docType.ID,
			docType.Name,
			string(docType.Category),
			docType.Required,
			formats,
			docType.MaxSizePDF,
			docType.MaxSizeImage,
			docType.Description,
			docType.CreatedAt,
			docType.UpdatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	category = EXCLUDED.category,
	required = EXCLUDED.required,
	accepted_formats = EXCLUDED.accepted_formats,
	max_size_pdf = EXCLUDED.max_size_pdf,
	max_size_image = EXCLUDED.max_size_image,
	description = EXCLUDED.description,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert document type: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert document type: %w", err)
	}
	return nil
}
