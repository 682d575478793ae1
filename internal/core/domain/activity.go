package domain

import "time"

type ActivityType string

const (
	ActivityStatusChange   ActivityType = "status_change"
	ActivityDocumentUpload ActivityType = "document_upload"
	ActivityDocumentVerify ActivityType = "document_verify"
	ActivityDocumentReject ActivityType = "document_reject"
)

// ActivityEvent is a read-side projection of a status history row or a
// document lifecycle transition. It is never stored.
type ActivityEvent struct {
	ID        string            `json:"id"`
	Type      ActivityType      `json:"type"`
	LeadID    string            `json:"lead_id"`
	ActorID   string            `json:"actor_id,omitempty"`
	Actor     string            `json:"actor"`
	ActorRole string            `json:"actor_role,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}

type ActivityQuery struct {
	LeadID string
	Limit  int
}

type ChangeKind string

const (
	ChangeDocumentUploaded ChangeKind = "document.uploaded"
	ChangeDocumentVerified ChangeKind = "document.verified"
	ChangeDocumentRejected ChangeKind = "document.rejected"
)

// ChangeEvent is published whenever a document record changes so live
// queue and activity views can refresh.
type ChangeEvent struct {
	Kind       ChangeKind `json:"kind"`
	DocumentID string     `json:"document_id"`
	LeadID     string     `json:"lead_id"`
	ActorID    string     `json:"actor_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
