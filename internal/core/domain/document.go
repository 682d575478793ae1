package domain

import "time"

type DocumentCategory string

const (
	CategoryStudent                 DocumentCategory = "student"
	CategoryFinancialCoApplicant    DocumentCategory = "financial_co_applicant"
	CategoryNonFinancialCoApplicant DocumentCategory = "non_financial_co_applicant"
	CategoryCollateral              DocumentCategory = "collateral"
	CategoryNRIFinancial            DocumentCategory = "nri_financial"
)

func (c DocumentCategory) Valid() bool {
	switch c {
	case CategoryStudent, CategoryFinancialCoApplicant, CategoryNonFinancialCoApplicant, CategoryCollateral, CategoryNRIFinancial:
		return true
	default:
		return false
	}
}

// DocumentType is administrator-maintained reference data describing what a
// lead must upload and which files are acceptable for it.
type DocumentType struct {
	ID              string           `json:"id" yaml:"id"`
	Name            string           `json:"name" yaml:"name"`
	Category        DocumentCategory `json:"category" yaml:"category"`
	Required        bool             `json:"required" yaml:"required"`
	AcceptedFormats []string         `json:"accepted_formats" yaml:"accepted_formats"`
	MaxSizePDF      int64            `json:"max_size_pdf" yaml:"max_size_pdf"`
	MaxSizeImage    int64            `json:"max_size_image" yaml:"max_size_image"`
	Description     string           `json:"description,omitempty" yaml:"description"`
	CreatedAt       time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time        `json:"updated_at" yaml:"-"`
}

type UploadStatus string

const (
	UploadStatusUploaded UploadStatus = "uploaded"
	UploadStatusFailed   UploadStatus = "failed"
)

type VerificationStatus string

const (
	VerificationPending              VerificationStatus = "pending"
	VerificationUploaded             VerificationStatus = "uploaded"
	VerificationVerified             VerificationStatus = "verified"
	VerificationRejected             VerificationStatus = "rejected"
	VerificationResubmissionRequired VerificationStatus = "resubmission_required"
)

// DocumentRecord is the durable result of a successful upload. Reviewers may
// only change VerificationStatus, AdminNotes, VerifiedBy and VerifiedAt.
type DocumentRecord struct {
	ID                 string             `json:"id"`
	LeadID             string             `json:"lead_id"`
	DocumentTypeID     string             `json:"document_type_id"`
	OriginalFilename   string             `json:"original_filename"`
	StoredPath         string             `json:"stored_path"`
	FileSize           int64              `json:"file_size"`
	MimeType           string             `json:"mime_type"`
	UploadStatus       UploadStatus       `json:"upload_status"`
	VerificationStatus VerificationStatus `json:"verification_status"`

	AIValidationStatus  *ValidationStatus `json:"ai_validation_status,omitempty"`
	AIDetectedType      *string           `json:"ai_detected_type,omitempty"`
	AIConfidenceScore   *int              `json:"ai_confidence_score,omitempty"`
	AIQualityAssessment *string           `json:"ai_quality_assessment,omitempty"`
	AIValidationNotes   *string           `json:"ai_validation_notes,omitempty"`
	AIValidatedAt       *time.Time        `json:"ai_validated_at,omitempty"`

	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	VerifiedBy *string    `json:"verified_by,omitempty"`
	AdminNotes *string    `json:"admin_notes,omitempty"`

	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
	Version    int       `json:"version"`
}

// ApplyVerdict copies the automated verdict onto the record. result is nil
// when the classifier was skipped or failed open; the confidence score then
// stays empty.
func (d *DocumentRecord) ApplyVerdict(verdict *Verdict, result *ClassificationResult, at time.Time) {
	if verdict == nil {
		return
	}
	status := verdict.Status
	notes := verdict.Notes
	validatedAt := at
	d.AIValidationStatus = &status
	d.AIValidationNotes = &notes
	d.AIValidatedAt = &validatedAt
	if result == nil {
		return
	}
	detected := result.DetectedType
	confidence := result.Confidence
	quality := string(result.Quality)
	d.AIDetectedType = &detected
	d.AIConfidenceScore = &confidence
	d.AIQualityAssessment = &quality
}

// PendingDocument is one row of the verification queue.
type PendingDocument struct {
	Document         DocumentRecord `json:"document"`
	LeadReference    string         `json:"lead_reference"`
	ApplicantName    string         `json:"applicant_name"`
	DocumentTypeName string         `json:"document_type_name"`
}

// StatusHistoryEntry is one row of the lead status log maintained by the
// surrounding product.
type StatusHistoryEntry struct {
	ID        string    `json:"id" db:"id"`
	LeadID    string    `json:"lead_id" db:"lead_id"`
	OldStatus string    `json:"old_status" db:"old_status"`
	NewStatus string    `json:"new_status" db:"new_status"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	ChangedBy string    `json:"changed_by" db:"changed_by"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}

// Actor is the display identity of a user referenced by id.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// Label returns the best display label for the actor.
func (a Actor) Label() string {
	switch {
	case a.DisplayName != "":
		return a.DisplayName
	case a.Email != "":
		return a.Email
	default:
		return UnknownActor
	}
}

const UnknownActor = "Unknown"
