// Package documents implements the Document Processor: concurrent,
// best-effort download and archival of document URLs collected by the
// Extractor (spec.md section 4.8). It runs off the critical extraction
// path — a failed download or extraction never fails the owning job.
package documents

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout-core/internal/models"
	"github.com/hoistscout/hoistscout-core/internal/objectstore"
)

// maxDownloadBytes caps a single document download; anything larger is
// skipped rather than streamed into memory (spec.md section 4.8).
const maxDownloadBytes = 50 * 1024 * 1024

// perHostLimit bounds simultaneous downloads to any one host so the
// Document Processor never becomes its own denial-of-service vector.
const perHostLimit = 2

// Extractor pulls text/metadata out of a downloaded payload. It is an
// injectable capability so the Document Processor stays agnostic of
// whatever PDF/OCR library eventually backs it.
type Extractor interface {
	Extract(ctx context.Context, payload []byte, contentType string) (text string, pages int, hasTables bool, hasImages bool, err error)
}

// Processor downloads, stores, and extracts text from document URLs.
type Processor struct {
	httpClient *http.Client
	store      objectstore.Store
	extractor  Extractor
	logger     arbor.ILogger

	mu       sync.Mutex
	hostSems map[string]chan struct{}
}

// New builds a Processor. extractor may be nil, in which case every
// document is stored with status=done and an empty ExtractedText.
func New(store objectstore.Store, extractor Extractor, logger arbor.ILogger) *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		store:      store,
		extractor:  extractor,
		logger:     logger,
		hostSems:   make(map[string]chan struct{}),
	}
}

// ProcessAll downloads and stores every URL in docURLs concurrently,
// bounded per-host, returning one models.Document per URL, the i-th
// result for docURLs[i]. Individual failures never fail the batch.
func (p *Processor) ProcessAll(ctx context.Context, opportunityID int64, docURLs []string) []models.Document {
	results := make([]models.Document, len(docURLs))
	var wg sync.WaitGroup

	for i, docURL := range docURLs {
		wg.Add(1)
		go func(i int, docURL string) {
			defer wg.Done()
			results[i] = p.process(ctx, opportunityID, docURL)
		}(i, docURL)
	}
	wg.Wait()

	return results
}

func (p *Processor) process(ctx context.Context, opportunityID int64, docURL string) models.Document {
	now := time.Now()
	doc := models.Document{
		OpportunityID: opportunityID,
		Filename:      filenameFromURL(docURL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	release := p.acquireHostSlot(ctx, docURL)
	defer release()

	body, contentType, status, err := p.download(ctx, docURL)
	if err != nil {
		doc.Status = models.DocumentStatusFailed
		doc.FailureReason = err.Error()
		return doc
	}
	if status >= 400 {
		doc.Status = models.DocumentStatusFailed
		doc.FailureReason = fmt.Sprintf("http status %d", status)
		return doc
	}
	if len(body) > maxDownloadBytes {
		doc.Status = models.DocumentStatusFailed
		doc.FailureReason = fmt.Sprintf("document exceeds %d byte cap", maxDownloadBytes)
		return doc
	}

	doc.SizeBytes = int64(len(body))
	doc.MimeType = contentType
	doc.ObjectKey = objectstore.DocumentKey(docURL, now)

	if p.store != nil {
		if err := p.store.Put(ctx, doc.ObjectKey, body, contentType); err != nil {
			doc.Status = models.DocumentStatusFailed
			doc.FailureReason = fmt.Sprintf("object store upload failed: %v", err)
			return doc
		}
	}

	if p.extractor == nil {
		doc.Status = models.DocumentStatusDone
		return doc
	}

	text, pages, hasTables, hasImages, err := p.extractor.Extract(ctx, body, contentType)
	if err != nil {
		p.logf("text extraction failed for %s: %v", docURL, err)
		doc.Status = models.DocumentStatusDone
		doc.ExtractedText = ""
		return doc
	}

	doc.Status = models.DocumentStatusDone
	doc.ExtractedText = text
	doc.ExtractedPayload = metadataPayload(pages, hasTables, hasImages)
	return doc
}

func (p *Processor) download(ctx context.Context, docURL string) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxDownloadBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", resp.StatusCode, fmt.Errorf("reading body: %w", err)
	}

	return body, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

func (p *Processor) acquireHostSlot(ctx context.Context, docURL string) func() {
	host := hostOf(docURL)

	p.mu.Lock()
	sem, ok := p.hostSems[host]
	if !ok {
		sem = make(chan struct{}, perHostLimit)
		p.hostSems[host] = sem
	}
	p.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return func() {}
	}
	return func() { <-sem }
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Path == "" || u.Path == "/" {
		return u.Host
	}
	segments := []rune(u.Path)
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] == '/' {
			return string(segments[i+1:])
		}
	}
	return u.Path
}

func metadataPayload(pages int, hasTables, hasImages bool) []byte {
	return []byte(fmt.Sprintf(`{"pages":%d,"has_tables":%t,"has_images":%t}`, pages, hasTables, hasImages))
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Warn().Msg(fmt.Sprintf(format, args...))
}
