package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

const documentRecordTable = "lead_documents"

var documentRecordColumns = []string{
	"id",
	"lead_id",
	"document_type_id",
	"original_filename",
	"stored_path",
	"file_size",
	"mime_type",
	"upload_status",
	"verification_status",
	"ai_validation_status",
	"ai_detected_type",
	"ai_confidence_score",
	"ai_quality_assessment",
	"ai_validation_notes",
	"ai_validated_at",
	"verified_at",
	"verified_by",
	"admin_notes",
	"uploaded_by",
	"uploaded_at",
	"version",
}

type documentRecordRow struct {
	ID                  string     `db:"id"`
	LeadID              string     `db:"lead_id"`
	DocumentTypeID      string     `db:"document_type_id"`
	OriginalFilename    string     `db:"original_filename"`
	StoredPath          string     `db:"stored_path"`
	FileSize            int64      `db:"file_size"`
	MimeType            string     `db:"mime_type"`
	UploadStatus        string     `db:"upload_status"`
	VerificationStatus  string     `db:"verification_status"`
	AIValidationStatus  *string    `db:"ai_validation_status"`
	AIDetectedType      *string    `db:"ai_detected_type"`
	AIConfidenceScore   *int       `db:"ai_confidence_score"`
	AIQualityAssessment *string    `db:"ai_quality_assessment"`
	AIValidationNotes   *string    `db:"ai_validation_notes"`
	AIValidatedAt       *time.Time `db:"ai_validated_at"`
	VerifiedAt          *time.Time `db:"verified_at"`
	VerifiedBy          *string    `db:"verified_by"`
	AdminNotes          *string    `db:"admin_notes"`
	UploadedBy          string     `db:"uploaded_by"`
	UploadedAt          time.Time  `db:"uploaded_at"`
	Version             int        `db:"version"`
}

func (r documentRecordRow) toDomain() domain.DocumentRecord {
	record := domain.DocumentRecord{
		ID:                  r.ID,
		LeadID:              r.LeadID,
		DocumentTypeID:      r.DocumentTypeID,
		OriginalFilename:    r.OriginalFilename,
		StoredPath:          r.StoredPath,
		FileSize:            r.FileSize,
		MimeType:            r.MimeType,
		UploadStatus:        domain.UploadStatus(r.UploadStatus),
		VerificationStatus:  domain.VerificationStatus(r.VerificationStatus),
		AIDetectedType:      r.AIDetectedType,
		AIConfidenceScore:   r.AIConfidenceScore,
		AIQualityAssessment: r.AIQualityAssessment,
		AIValidationNotes:   r.AIValidationNotes,
		AIValidatedAt:       r.AIValidatedAt,
		VerifiedAt:          r.VerifiedAt,
		VerifiedBy:          r.VerifiedBy,
		AdminNotes:          r.AdminNotes,
		UploadedBy:          r.UploadedBy,
		UploadedAt:          r.UploadedAt,
		Version:             r.Version,
	}
	if r.AIValidationStatus != nil {
		status := domain.ValidationStatus(*r.AIValidationStatus)
		record.AIValidationStatus = &status
	}
	return record
}

type pendingDocumentRow struct {
	documentRecordRow
	LeadReference    string `db:"lead_reference"`
	ApplicantName    string `db:"applicant_name"`
	DocumentTypeName string `db:"document_type_name"`
}

type DocumentRecordRepository struct {
	db *sql.DB
}

func NewDocumentRecordRepository(db *sql.DB) *DocumentRecordRepository {
	return &DocumentRecordRepository{db: db}
}

func (r *DocumentRecordRepository) Create(ctx context.Context, record *domain.DocumentRecord) error {
	var aiStatus *string
	if record.AIValidationStatus != nil {
		s := string(*record.AIValidationStatus)
		aiStatus = &s
	}
	query, args, err := psql().
		Insert(documentRecordTable).
		Columns(documentRecordColumns...).
		Values(
			record.ID,
			record.LeadID,
			record.DocumentTypeID,
			record.OriginalFilename,
			record.StoredPath,
			record.FileSize,
			record.MimeType,
			string(record.UploadStatus),
			string(record.VerificationStatus),
			aiStatus,
			record.AIDetectedType,
			record.AIConfidenceScore,
			record.AIQualityAssessment,
			record.AIValidationNotes,
			record.AIValidatedAt,
			record.VerifiedAt,
			record.VerifiedBy,
			record.AdminNotes,
			record.UploadedBy,
			record.UploadedAt,
			record.Version,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert document record: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document record: %w", err)
	}
	return nil
}

func (r *DocumentRecordRepository) GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	query, args, err := psql().
		Select(documentRecordColumns...).
		From(documentRecordTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get document record: %w", err)
	}

	var row documentRecordRow
	if err := sqlscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document record", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("select document record: %w", err)
	}
	record := row.toDomain()
	return &record, nil
}

// ListPending returns the verification queue joined with lead and document
// type labels, newest upload first.
func (r *DocumentRecordRepository) ListPending(ctx context.Context) ([]domain.PendingDocument, error) {
	columns := make([]string, 0, len(documentRecordColumns)+3)
	for _, c := range documentRecordColumns {
		columns = append(columns, "d."+c)
	}
	columns = append(columns,
		"COALESCE(l.reference, '') AS lead_reference",
		"COALESCE(l.applicant_name, '') AS applicant_name",
		"COALESCE(t.name, d.document_type_id) AS document_type_name",
	)

	query, args, err := psql().
		Select(columns...).
		From(documentRecordTable + " d").
		LeftJoin("leads l ON l.id = d.lead_id").
		LeftJoin(documentTypeTable + " t ON t.id = d.document_type_id").
		Where(sq.Eq{"d.verification_status": string(domain.VerificationPending)}).
		OrderBy("d.uploaded_at DESC", "d.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	var rows []pendingDocumentRow
	if err := sqlscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select pending documents: %w", err)
	}
	out := make([]domain.PendingDocument, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.PendingDocument{
			Document:         row.toDomain(),
			LeadReference:    row.LeadReference,
			ApplicantName:    row.ApplicantName,
			DocumentTypeName: row.DocumentTypeName,
		})
	}
	return out, nil
}

// MarkVerified moves a pending record to verified in one statement.
func (r *DocumentRecordRepository) MarkVerified(ctx context.Context, id, reviewerID string, notes *string, at time.Time) (*domain.DocumentRecord, error) {
	return r.review(ctx, "mark verified", id, domain.VerificationVerified, reviewerID, notes, at,
		[]string{string(domain.VerificationPending)})
}

// MarkRejected moves a pending record to rejected. An already rejected
// record is updated again so the latest notes win.
func (r *DocumentRecordRepository) MarkRejected(ctx context.Context, id, reviewerID, notes string, at time.Time) (*domain.DocumentRecord, error) {
	return r.review(ctx, "mark rejected", id, domain.VerificationRejected, reviewerID, &notes, at,
		[]string{string(domain.VerificationPending), string(domain.VerificationRejected)})
}

func (r *DocumentRecordRepository) review(
	ctx context.Context,
	op, id string,
	to domain.VerificationStatus,
	reviewerID string,
	notes *string,
	at time.Time,
	from []string,
) (*domain.DocumentRecord, error) {
	query, args, err := psql().
		Update(documentRecordTable).
		Set("verification_status", string(to)).
		Set("verified_by", reviewerID).
		Set("verified_at", at).
		Set("admin_notes", notes).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id, "verification_status": from}).
		Suffix("RETURNING " + strings.Join(documentRecordColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}

	var row documentRecordRow
	if err := sqlscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, domain.WrapError(domain.ErrConflict, op, fmt.Errorf("no document %s in state %s", id, strings.Join(from, "|")))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	record := row.toDomain()
	return &record, nil
}

// ListRecent returns the records most recently uploaded or reviewed.
func (r *DocumentRecordRepository) ListRecent(ctx context.Context, q domain.ActivityQuery) ([]domain.DocumentRecord, error) {
	builder := psql().
		Select(documentRecordColumns...).
		From(documentRecordTable).
		OrderBy("COALESCE(verified_at, uploaded_at) DESC", "id")
	if q.LeadID != "" {
		builder = builder.Where(sq.Eq{"lead_id": q.LeadID})
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent documents query: %w", err)
	}

	var rows []documentRecordRow
	if err := sqlscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select recent documents: %w", err)
	}
	out := make([]domain.DocumentRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
