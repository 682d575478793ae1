package domain

type Quality string

const (
	QualityGood       Quality = "good"
	QualityAcceptable Quality = "acceptable"
	QualityPoor       Quality = "poor"
	QualityUnreadable Quality = "unreadable"
)

type RedFlag string

const (
	FlagNotADocument RedFlag = "not_a_document"
	FlagSelfie       RedFlag = "selfie"
	FlagScreenshot   RedFlag = "screenshot"
	FlagEdited       RedFlag = "edited"
	FlagBlurry       RedFlag = "blurry"
	FlagPartial      RedFlag = "partial"
	FlagLowQuality   RedFlag = "low_quality"
	FlagWrongType    RedFlag = "wrong_type"
	FlagRandomPhoto  RedFlag = "random_photo"
)

// ClassificationResult is the raw output of the vision classifier for one
// upload attempt.
type ClassificationResult struct {
	DetectedType string    `json:"detected_type"`
	IsDocument   bool      `json:"is_document"`
	Confidence   int       `json:"confidence"`
	Quality      Quality   `json:"quality"`
	RedFlags     []RedFlag `json:"red_flags"`
	Reasoning    string    `json:"reasoning"`
}

func (r ClassificationResult) HasAnyFlag(flags ...RedFlag) []RedFlag {
	var hits []RedFlag
	for _, want := range flags {
		for _, got := range r.RedFlags {
			if got == want {
				hits = append(hits, want)
				break
			}
		}
	}
	return hits
}

type ValidationStatus string

const (
	ValidationValidated    ValidationStatus = "validated"
	ValidationRejected     ValidationStatus = "rejected"
	ValidationManualReview ValidationStatus = "manual_review"
)

// Verdict is the automated trust decision for a classification.
type Verdict struct {
	Status ValidationStatus `json:"status"`
	Notes  string           `json:"notes"`
}

// ClassifyRequest is the local contract with the classification oracle.
type ClassifyRequest struct {
	Content      []byte
	MimeType     string
	ExpectedType string
}
