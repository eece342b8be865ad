package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

// OpportunityRepo persists Opportunities and their Documents.
type OpportunityRepo struct {
	db *DB
}

// NewOpportunityRepo builds an OpportunityRepo.
func NewOpportunityRepo(db *DB) *OpportunityRepo { return &OpportunityRepo{db: db} }

// PersistBatch upserts every opportunity (keyed on source_url) and its
// documents in a single transaction, per spec.md section 4.9 step 7.
func (r *OpportunityRepo) PersistBatch(ctx context.Context, opportunities []models.Opportunity, documentsByURL map[string][]models.Document) (err error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning persist tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	for _, opp := range opportunities {
		id, uerr := upsertOpportunity(ctx, tx, opp)
		if uerr != nil {
			return uerr
		}
		for _, doc := range documentsByURL[opp.SourceURL] {
			if derr := insertDocument(ctx, tx, id, doc); derr != nil {
				return derr
			}
		}
	}
	return nil
}

func upsertOpportunity(ctx context.Context, tx *sql.Tx, opp models.Opportunity) (int64, error) {
	categories, err := json.Marshal(opp.Categories)
	if err != nil {
		return 0, fmt.Errorf("postgres: marshaling categories: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO opportunities (
			site_id, title, description, deadline, value, currency, reference_number,
			source_url, categories, location, extracted_payload, confidence, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		ON CONFLICT (source_url) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			deadline = EXCLUDED.deadline,
			value = EXCLUDED.value,
			currency = EXCLUDED.currency,
			reference_number = EXCLUDED.reference_number,
			categories = EXCLUDED.categories,
			location = EXCLUDED.location,
			extracted_payload = EXCLUDED.extracted_payload,
			confidence = EXCLUDED.confidence,
			updated_at = now()
		RETURNING id`,
		opp.SiteID, opp.Title, opp.Description, opp.Deadline, opp.Value, opp.Currency,
		opp.ReferenceNumber, opp.SourceURL, categories, opp.Location, opp.ExtractedPayload, opp.Confidence,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: upserting opportunity %q: %w", opp.SourceURL, err)
	}
	return id, nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, opportunityID int64, doc models.Document) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (
			opportunity_id, filename, object_key, size_bytes, mime_type,
			extracted_text, extracted_payload, status, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		opportunityID, doc.Filename, doc.ObjectKey, doc.SizeBytes, doc.MimeType,
		doc.ExtractedText, doc.ExtractedPayload, doc.Status, doc.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting document %q: %w", doc.Filename, err)
	}
	return nil
}
