package documents

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (f *fakeStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = bytes.Clone(body)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

type fakeExtractor struct{ fail bool }

func (e *fakeExtractor) Extract(ctx context.Context, payload []byte, contentType string) (string, int, bool, bool, error) {
	if e.fail {
		return "", 0, false, false, assertErr
	}
	return "extracted text", 3, true, false, nil
}

var assertErr = &extractError{}

type extractError struct{}

func (e *extractError) Error() string { return "extraction failed" }

func TestProcessAll_SuccessfulDownloadAndExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake content"))
	}))
	defer srv.Close()

	store := newFakeStore()
	p := New(store, &fakeExtractor{}, nil)

	docs := p.ProcessAll(t.Context(), 1, []string{srv.URL + "/doc.pdf"})
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentStatusDone, docs[0].Status)
	assert.Equal(t, "extracted text", docs[0].ExtractedText)
	assert.NotEmpty(t, docs[0].ObjectKey)
	assert.NotZero(t, docs[0].SizeBytes)
}

func TestProcessAll_HTTPErrorMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := New(newFakeStore(), &fakeExtractor{}, nil)
	docs := p.ProcessAll(t.Context(), 1, []string{srv.URL + "/missing.pdf"})
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentStatusFailed, docs[0].Status)
	assert.Contains(t, docs[0].FailureReason, "404")
}

func TestProcessAll_ExtractionFailureStillMarksDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	p := New(newFakeStore(), &fakeExtractor{fail: true}, nil)
	docs := p.ProcessAll(t.Context(), 1, []string{srv.URL + "/doc.pdf"})
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentStatusDone, docs[0].Status)
	assert.Empty(t, docs[0].ExtractedText)
}

func TestProcessAll_NilExtractorMarksDoneWithoutText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	p := New(newFakeStore(), nil, nil)
	docs := p.ProcessAll(t.Context(), 1, []string{srv.URL + "/doc.pdf"})
	require.Len(t, docs, 1)
	assert.Equal(t, models.DocumentStatusDone, docs[0].Status)
	assert.Empty(t, docs[0].ExtractedText)
}
