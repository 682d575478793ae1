package policy

import (
	"strings"
	"testing"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

func goodResult(detected string) *domain.ClassificationResult {
	return &domain.ClassificationResult{
		DetectedType: detected,
		IsDocument:   true,
		Confidence:   85,
		Quality:      domain.QualityGood,
	}
}

func TestDecideNilResultIsManualReview(t *testing.T) {
	v := Decide(nil, "PAN Card")
	if v.Status != domain.ValidationManualReview {
		t.Fatalf("expected manual_review, got %s", v.Status)
	}
	if !strings.Contains(v.Notes, "skipped") {
		t.Fatalf("expected skipped wording, got %q", v.Notes)
	}
}

func TestDecideNotADocumentDominatesEverything(t *testing.T) {
	qualities := []domain.Quality{domain.QualityGood, domain.QualityAcceptable, domain.QualityPoor, domain.QualityUnreadable}
	for _, q := range qualities {
		for _, confidence := range []int{0, 39, 59, 100} {
			r := &domain.ClassificationResult{
				DetectedType: "pan_card",
				IsDocument:   false,
				Confidence:   confidence,
				Quality:      q,
			}
			if v := Decide(r, "PAN Card"); v.Status != domain.ValidationRejected {
				t.Fatalf("quality=%s confidence=%d: expected rejected, got %s", q, confidence, v.Status)
			}
		}
	}
}

func TestDecideIllegitimateFlagsReject(t *testing.T) {
	for _, flag := range []domain.RedFlag{domain.FlagNotADocument, domain.FlagRandomPhoto, domain.FlagSelfie} {
		r := goodResult("pan_card")
		r.Confidence = 99
		r.RedFlags = []domain.RedFlag{flag}
		v := Decide(r, "PAN Card")
		if v.Status != domain.ValidationRejected {
			t.Fatalf("flag %s: expected rejected, got %s", flag, v.Status)
		}
		if !strings.Contains(v.Notes, "Not a valid document") {
			t.Fatalf("flag %s: unexpected notes %q", flag, v.Notes)
		}
	}
}

func TestDecideUnknownType(t *testing.T) {
	v := Decide(goodResult("Unknown"), "PAN Card")
	if v.Status != domain.ValidationRejected || !strings.Contains(v.Notes, "Unrecognized") {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestDecideWrongDocumentType(t *testing.T) {
	v := Decide(goodResult("aadhaar_card"), "PAN Card")
	if v.Status != domain.ValidationRejected {
		t.Fatalf("expected rejected, got %s", v.Status)
	}
	if !strings.Contains(v.Notes, "wrong document type: expected PAN Card, got aadhaar_card") {
		t.Fatalf("unexpected notes %q", v.Notes)
	}
}

func TestDecideAliasMatchValidates(t *testing.T) {
	r := goodResult("pan_copy")
	r.Confidence = 72
	if v := Decide(r, "PAN Card"); v.Status != domain.ValidationValidated {
		t.Fatalf("expected validated, got %+v", v)
	}
}

func TestDecideLowConfidenceRejectsWithScore(t *testing.T) {
	r := goodResult("pan_card")
	r.Confidence = 35
	v := Decide(r, "PAN Card")
	if v.Status != domain.ValidationRejected || !strings.Contains(v.Notes, "35%") {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestDecideTypeMismatchDominatesLowConfidence(t *testing.T) {
	r := goodResult("passport")
	r.Confidence = 10
	v := Decide(r, "PAN Card")
	if !strings.Contains(v.Notes, "wrong document type") {
		t.Fatalf("expected type mismatch to fire first, got %q", v.Notes)
	}
}

func TestDecidePoorQualityNeedsReview(t *testing.T) {
	for _, q := range []domain.Quality{domain.QualityPoor, domain.QualityUnreadable} {
		r := goodResult("pan_card")
		r.Quality = q
		r.RedFlags = []domain.RedFlag{domain.FlagEdited}
		v := Decide(r, "PAN Card")
		if v.Status != domain.ValidationManualReview || !strings.Contains(v.Notes, "Quality") {
			t.Fatalf("quality=%s: unexpected verdict %+v", q, v)
		}
	}
}

func TestDecideSuspiciousFlagsListed(t *testing.T) {
	r := goodResult("pan_card")
	r.RedFlags = []domain.RedFlag{domain.FlagScreenshot, domain.FlagBlurry, domain.FlagEdited}
	v := Decide(r, "PAN Card")
	if v.Status != domain.ValidationManualReview {
		t.Fatalf("expected manual_review, got %s", v.Status)
	}
	if !strings.Contains(v.Notes, "edited, screenshot") {
		t.Fatalf("expected flags listed, got %q", v.Notes)
	}
}

func TestDecideMediumConfidenceNeedsReview(t *testing.T) {
	r := goodResult("pan_card")
	r.Confidence = 55
	v := Decide(r, "PAN Card")
	if v.Status != domain.ValidationManualReview || !strings.Contains(v.Notes, "55%") {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestDecideBoundaries(t *testing.T) {
	r := goodResult("pan_card")
	r.Confidence = RejectConfidenceBelow
	if v := Decide(r, "PAN Card"); v.Status != domain.ValidationManualReview {
		t.Fatalf("confidence 40 should need review, got %s", v.Status)
	}
	r.Confidence = ReviewConfidenceBelow
	if v := Decide(r, "PAN Card"); v.Status != domain.ValidationValidated {
		t.Fatalf("confidence 60 should validate, got %s", v.Status)
	}
}
