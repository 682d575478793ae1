// Package xlsx renders the verification queue as a spreadsheet for offline
// review.
package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

const pendingSheet = "Pending"

var pendingHeader = []any{
	"Document ID",
	"Lead",
	"Applicant",
	"Document Type",
	"File",
	"Size (bytes)",
	"AI Status",
	"AI Confidence",
	"AI Notes",
	"Uploaded At",
	"Waiting (hours)",
}

// WritePending writes one row per pending document, newest upload first as
// given. now anchors the waiting column.
func WritePending(w io.Writer, pending []domain.PendingDocument, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", pendingSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(pendingSheet, "A1", &pendingHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(pendingHeader))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(pendingSheet, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, p := range pending {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := pendingRow(p, now)
		if err := f.SetSheetRow(pendingSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(pendingSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func pendingRow(p domain.PendingDocument, now time.Time) []any {
	doc := p.Document
	aiStatus, aiConfidence, aiNotes := "", "", ""
	if doc.AIValidationStatus != nil {
		aiStatus = string(*doc.AIValidationStatus)
	}
	if doc.AIConfidenceScore != nil {
		aiConfidence = fmt.Sprintf("%d", *doc.AIConfidenceScore)
	}
	if doc.AIValidationNotes != nil {
		aiNotes = *doc.AIValidationNotes
	}
	lead := p.LeadReference
	if lead == "" {
		lead = doc.LeadID
	}
	docType := p.DocumentTypeName
	if docType == "" {
		docType = doc.DocumentTypeID
	}
	waiting := now.Sub(doc.UploadedAt).Hours()
	if waiting < 0 {
		waiting = 0
	}
	return []any{
		doc.ID,
		lead,
		p.ApplicantName,
		docType,
		doc.OriginalFilename,
		doc.FileSize,
		aiStatus,
		aiConfidence,
		aiNotes,
		doc.UploadedAt.UTC().Format(time.RFC3339),
		fmt.Sprintf("%.1f", waiting),
	}
}
