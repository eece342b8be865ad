package models

import (
	"encoding/json"
	"time"
)

// Opportunity is a single advertised tender/grant/contract with its
// metadata and, optionally, attached documents. source_url uniqueness
// provides dedup across runs (spec.md section 3, invariant I2).
type Opportunity struct {
	ID                int64           `json:"id"`
	SiteID            int64           `json:"site_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Deadline          *time.Time      `json:"deadline,omitempty"`
	Value             *float64        `json:"value,omitempty"`
	Currency          string          `json:"currency"`
	ReferenceNumber   string          `json:"reference_number,omitempty"`
	SourceURL         string          `json:"source_url"`
	Categories        []string        `json:"categories,omitempty"`
	Location          string          `json:"location,omitempty"`
	ExtractedPayload  json.RawMessage `json:"extracted_payload,omitempty"`
	Confidence        float64         `json:"confidence"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DefaultCurrency is applied when extraction does not surface a
// currency code (spec.md section 3).
const DefaultCurrency = "USD"

// Document is an attachment owned by an Opportunity (cascade delete,
// invariant I3: a Document exists only if its Opportunity exists).
type Document struct {
	ID               int64           `json:"id"`
	OpportunityID    int64           `json:"opportunity_id"`
	Filename         string          `json:"filename"`
	ObjectKey        string          `json:"object_key"`
	SizeBytes        int64           `json:"size_bytes"`
	MimeType         string          `json:"mime_type"`
	ExtractedText    string          `json:"extracted_text,omitempty"`
	ExtractedPayload json.RawMessage `json:"extracted_payload,omitempty"`
	Status           DocumentStatus  `json:"status"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DocumentStatus is the lifecycle state of a Document's processing.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusDone       DocumentStatus = "done"
	DocumentStatusFailed     DocumentStatus = "failed"
)
