package policy

import (
	"fmt"
	"strings"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

const (
	RejectConfidenceBelow = 40
	ReviewConfidenceBelow = 60
)

var (
	illegitimateFlags = []domain.RedFlag{domain.FlagNotADocument, domain.FlagRandomPhoto, domain.FlagSelfie}
	suspiciousFlags   = []domain.RedFlag{domain.FlagEdited, domain.FlagScreenshot, domain.FlagPartial}
)

// Decide turns a raw classification into a verdict. Rules are evaluated in
// order and the first one that fires wins: legitimacy, then type match,
// then confidence, then quality. A nil result means the classifier was
// unavailable.
func Decide(result *domain.ClassificationResult, expectedType string) domain.Verdict {
	if result == nil {
		return domain.Verdict{
			Status: domain.ValidationManualReview,
			Notes:  "Automated check skipped: the classification service was unavailable. A reviewer will verify this document manually.",
		}
	}

	if !result.IsDocument {
		return reject("Not a valid document: the file does not appear to be a document. Please upload a clear photo or scan.")
	}
	if hits := result.HasAnyFlag(illegitimateFlags...); len(hits) > 0 {
		return reject(fmt.Sprintf("Not a valid document (%s). Please upload a clear photo or scan of the document.", joinFlags(hits)))
	}

	if NormalizeLabel(result.DetectedType) == "unknown" {
		return reject("Unrecognized document: the file could not be identified as a known document type.")
	}

	if !MatchesExpectedType(result.DetectedType, expectedType) {
		return reject(fmt.Sprintf("wrong document type: expected %s, got %s", expectedType, result.DetectedType))
	}

	if result.Confidence < RejectConfidenceBelow {
		return reject(fmt.Sprintf("Low confidence (%d%%): the document could not be identified reliably.", result.Confidence))
	}

	if result.Quality == domain.QualityPoor || result.Quality == domain.QualityUnreadable {
		return review(fmt.Sprintf("Quality issue: image quality is %s. A reviewer will check legibility.", result.Quality))
	}

	if hits := result.HasAnyFlag(suspiciousFlags...); len(hits) > 0 {
		return review(fmt.Sprintf("Needs manual review: possible issues detected (%s).", joinFlags(hits)))
	}

	if result.Confidence < ReviewConfidenceBelow {
		return review(fmt.Sprintf("Needs review: classification confidence %d%%.", result.Confidence))
	}

	return domain.Verdict{
		Status: domain.ValidationValidated,
		Notes:  fmt.Sprintf("Document matches %s (confidence %d%%).", expectedType, result.Confidence),
	}
}

func reject(notes string) domain.Verdict {
	return domain.Verdict{Status: domain.ValidationRejected, Notes: notes}
}

func review(notes string) domain.Verdict {
	return domain.Verdict{Status: domain.ValidationManualReview, Notes: notes}
}

func joinFlags(flags []domain.RedFlag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
