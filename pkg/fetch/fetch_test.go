package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/achesucatas/pkg/discovery"
	"github.com/kraklabs/achesucatas/pkg/httpclient"
	"github.com/kraklabs/achesucatas/pkg/resilience"
)

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Timeout:           2 * time.Second,
		PerHostInterval:   time.Millisecond,
		PerHostBurst:      10,
		RetryPolicy:       resilience.Policy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2},
		BreakerThreshold:  20,
		BreakerResetAfter: time.Second,
		UserAgent:         "test-agent",
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBlobStore struct {
	saved []Attachment
}

func (f *fakeBlobStore) Save(sourceExternalID string, att Attachment, metadata map[string]any) (string, error) {
	f.saved = append(f.saved, att)
	return "blobs/" + sourceExternalID + "/" + att.Name, nil
}

func TestClassifyByExtension(t *testing.T) {
	assert.Equal(t, KindPDF, Classify("https://x.com/edital.pdf", "", nil))
	assert.Equal(t, KindXLSX, Classify("https://x.com/lista.xlsx", "", nil))
	assert.Equal(t, KindXLS, Classify("https://x.com/lista.xls", "", nil))
	assert.Equal(t, KindDOCX, Classify("https://x.com/edital.docx", "", nil))
	assert.Equal(t, KindZIP, Classify("https://x.com/anexos.zip", "", nil))
	assert.Equal(t, KindJSON, Classify("https://x.com/detail.json", "", nil))
}

func TestClassifyByContentTypeWhenNoExtension(t *testing.T) {
	assert.Equal(t, KindPDF, Classify("https://x.com/download?id=1", "application/pdf", nil))
	assert.Equal(t, KindXLSX, Classify("https://x.com/d", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil))
	assert.Equal(t, KindJSON, Classify("https://x.com/d", "application/json; charset=utf-8", nil))
}

func TestClassifyFallsBackToMagicBytes(t *testing.T) {
	assert.Equal(t, KindPDF, Classify("https://x.com/d", "", []byte("%PDF-1.4 rest")))
	assert.Equal(t, KindZIP, Classify("https://x.com/d", "", []byte("PK\x03\x04rest")))
	assert.Equal(t, KindJSON, Classify("https://x.com/d", "", []byte(`{"a":1}`)))
	assert.Equal(t, KindUnknown, Classify("https://x.com/d", "", []byte("plain text")))
}

func TestFetchDownloadsDetailAndAttachments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/detail":
			w.Write([]byte(`{"titulo":"Leilão"}`))
		case "/files":
			w.Write([]byte(`{"arquivos":[{"url":"` + "http://" + r.Host + `/edital.pdf` + `"}]}`))
		case "/edital.pdf":
			w.Write([]byte("%PDF-1.4 fake content"))
		}
	}))
	defer srv.Close()

	blobs := &fakeBlobStore{}
	f := New(testClient(), blobs, discardLogger())
	notice := discovery.CandidateNotice{
		SourceExternalID: "EXT-1",
		NoticeURL:        srv.URL + "/detail",
		FilesURL:         srv.URL + "/files",
	}

	out, tombstoned, err := f.Fetch(context.Background(), notice)
	require.NoError(t, err)
	assert.False(t, tombstoned)
	assert.JSONEq(t, `{"titulo":"Leilão"}`, string(out.DetailJSON))
	require.Len(t, out.Attachments, 1)
	assert.Equal(t, KindPDF, out.Attachments[0].Kind)
	assert.Len(t, out.Attachments[0].Hash, 8)
	require.Len(t, blobs.saved, 1)
	assert.Equal(t, "blobs/EXT-1/edital.pdf", out.StoragePath)
}

func TestFetchTombstonesDuplicateWithinRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := New(testClient(), nil, discardLogger())
	notice := discovery.CandidateNotice{SourceExternalID: "EXT-DUP", NoticeURL: srv.URL}

	_, tombstoned1, err1 := f.Fetch(context.Background(), notice)
	require.NoError(t, err1)
	assert.False(t, tombstoned1)

	_, tombstoned2, err2 := f.Fetch(context.Background(), notice)
	require.NoError(t, err2)
	assert.True(t, tombstoned2)
}

type fakeTombstoneCache struct {
	tombstoned map[string]bool
}

func newFakeTombstoneCache() *fakeTombstoneCache {
	return &fakeTombstoneCache{tombstoned: map[string]bool{}}
}

func (c *fakeTombstoneCache) IsTombstoned(_ context.Context, id string) (bool, error) {
	return c.tombstoned[id], nil
}

func (c *fakeTombstoneCache) Tombstone(_ context.Context, id string, _ time.Duration) error {
	c.tombstoned[id] = true
	return nil
}

func TestFetchSkipsCandidateTombstonedByCrossRunCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("fetch must not hit the network for a pre-tombstoned id")
	}))
	defer srv.Close()

	cache := newFakeTombstoneCache()
	cache.tombstoned["EXT-GONE"] = true

	f := New(testClient(), nil, discardLogger()).WithTombstoneCache(cache)
	notice := discovery.CandidateNotice{SourceExternalID: "EXT-GONE", NoticeURL: srv.URL}

	_, tombstoned, err := f.Fetch(context.Background(), notice)
	require.NoError(t, err)
	assert.True(t, tombstoned)
}

func TestFetchWritesTombstoneOnNotFoundAndNotGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	cache := newFakeTombstoneCache()
	f := New(testClient(), nil, discardLogger()).WithTombstoneCache(cache)
	notice := discovery.CandidateNotice{SourceExternalID: "EXT-410", NoticeURL: srv.URL}

	_, tombstoned, err := f.Fetch(context.Background(), notice)
	assert.False(t, tombstoned, "the failing call itself still reports an error, not a skip")
	assert.Error(t, err)
	assert.True(t, cache.tombstoned["EXT-410"], "a 410 must be written to the cross-run cache")
}

func TestFetchReturnsErrorWhenDetailUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(testClient(), nil, discardLogger())
	notice := discovery.CandidateNotice{SourceExternalID: "EXT-404", NoticeURL: srv.URL}

	_, tombstoned, err := f.Fetch(context.Background(), notice)
	assert.False(t, tombstoned)
	assert.Error(t, err)
}

func TestFetchToleratesAttachmentDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/detail":
			w.Write([]byte(`{}`))
		case "/files":
			w.Write([]byte(`{"arquivos":[{"url":"` + "http://" + r.Host + `/missing.pdf` + `"}]}`))
		case "/missing.pdf":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := New(testClient(), nil, discardLogger())
	notice := discovery.CandidateNotice{
		SourceExternalID: "EXT-PARTIAL",
		NoticeURL:        srv.URL + "/detail",
		FilesURL:         srv.URL + "/files",
	}

	out, tombstoned, err := f.Fetch(context.Background(), notice)
	require.NoError(t, err)
	assert.False(t, tombstoned)
	assert.Empty(t, out.Attachments)
}
