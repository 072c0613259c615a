package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/distlock"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
	"github.com/ignite/newsletter-ai/internal/service/archive"
	"github.com/ignite/newsletter-ai/internal/service/workflow"
)

const generatedText = "*Mars Weekly*\n" +
	"**Rovers**\n***Perseverance found clays.***\n" +
	"**Launches**\n***Three launches this week.***\n" +
	"****space, mars****"

type stubReference struct{}

func (stubReference) FetchReference(context.Context, string) (string, error) {
	return "reference text", nil
}

type stubGenerator struct{ text string }

func (g stubGenerator) Generate(context.Context, domain.GenerationRequest) (string, error) {
	return g.text, nil
}

type recordingPersister struct {
	mu    sync.Mutex
	saved []*domain.Newsletter
}

func (p *recordingPersister) Persist(_ context.Context, doc *domain.Newsletter) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, doc)
	return http.StatusOK, nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []domain.EmailRequest
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req domain.EmailRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return "Email sent to subscribers", nil
}

// idleScheduler never fires, so labels stay put for assertions.
type idleScheduler struct{}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func (idleScheduler) AfterFunc(time.Duration, func()) workflow.Timer { return idleTimer{} }

type fakeObjects struct{ body string }

func (f fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if aws.ToString(in.Key) != "lists/june.txt" {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

type testServer struct {
	srv        *httptest.Server
	persister  *recordingPersister
	dispatcher *recordingDispatcher
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger.SetOutput(io.Discard)

	ts := &testServer{persister: &recordingPersister{}, dispatcher: &recordingDispatcher{}}
	manager := workflow.NewManager(workflow.Dependencies{
		Reference:  stubReference{},
		Generator:  stubGenerator{text: generatedText},
		Persister:  ts.persister,
		Dispatcher: ts.dispatcher,
	}, workflow.Options{
		ShareBaseURL: "https://news.example.com",
		SingleFlight: true,
		Locks:        distlock.NewMemoryLocks().Lock,
		Scheduler:    idleScheduler{},
		Logger:       logger.New(io.Discard, logger.ERROR),
	})
	t.Cleanup(manager.Close)

	h := NewHandlers(manager, opts)
	health := NewHealthChecker(HealthDeps{Sessions: manager.Len})
	ts.srv = httptest.NewServer(SetupRoutes(h, health, RouterConfig{RequestTimeout: 10 * time.Second}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func (ts *testServer) generate(t *testing.T, id string) {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/generate", map[string]string{
		"topic":         "Mars",
		"category":      "Space research",
		"reference_url": "https://example.com/mars",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Generated", body["state"])
}

func TestListCategories(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, body := ts.do(t, http.MethodGet, "/api/categories", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{"Technology", "Space research", "New innovation", "Web technology"}, body["categories"])
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t)
	base := "/api/sessions/" + id

	ts.generate(t, id)

	resp, body := ts.do(t, http.MethodPost, base+"/edit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Editing", body["state"])

	resp, _ = ts.do(t, http.MethodPatch, base+"/draft", map[string]string{"title": "Red Planet"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPatch, base+"/draft/sections/1", map[string]string{"paragraph": "Four launches."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	draft := body["draft"].(map[string]interface{})
	sections := draft["sections"].([]interface{})
	assert.Equal(t, "Four launches.", sections[1].(map[string]interface{})["paragraph"])

	resp, body = ts.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Saved", body["state"])
	assert.Equal(t, "https://news.example.com/?=Red%20Planet", body["link"])
	require.Len(t, ts.persister.saved, 1)
	assert.Equal(t, "Red Planet", ts.persister.saved[0].Title)

	resp, body = ts.do(t, http.MethodPost, base+"/copy", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://news.example.com/?=Red%20Planet", body["link"])

	resp, body = ts.do(t, http.MethodGet, base+"/notifications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := body["notifications"].([]interface{})
	require.Len(t, notes, 2)
	assert.Equal(t, workflow.MsgSaved, notes[0].(map[string]interface{})["message"])
	assert.Equal(t, workflow.MsgCopied, notes[1].(map[string]interface{})["message"])

	_, body = ts.do(t, http.MethodGet, base+"/notifications", nil)
	assert.Empty(t, body["notifications"])
}

func TestSend_Multipart(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t)
	ts.generate(t, id)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("emails", "a@x.com, b@y.com"))
	part, err := mw.CreateFormFile("file", "list.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("c@z.com\r\n\r\nd@w.com\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/sessions/"+id+"/send", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, body := ts.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Sent", body["state"])
	require.Len(t, ts.dispatcher.requests, 1)
	// Blank lines are passed through for the email service to reject.
	assert.Equal(t, []string{"a@x.com", "b@y.com", "c@z.com", "", "d@w.com", ""}, ts.dispatcher.requests[0].Emails)
	assert.Equal(t, "Mars Weekly", ts.dispatcher.requests[0].Title)
}

func TestSend_S3List(t *testing.T) {
	ts := newTestServer(t, Options{Objects: fakeObjects{body: "s3@x.com\n"}, Bucket: "lists"})
	id := ts.createSession(t)
	ts.generate(t, id)

	resp, _ := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/send", map[string]string{
		"emails": "a@x.com",
		"s3_key": "lists/june.txt",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"a@x.com", "s3@x.com", ""}, ts.dispatcher.requests[0].Emails)

	resp, body := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/send", map[string]string{"s3_key": "missing.txt"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeInvalid, body["code"])
}

func TestSend_S3WithoutBucket(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t)
	ts.generate(t, id)

	resp, body := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/send", map[string]string{"s3_key": "lists/june.txt"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeNoS3Bucket, body["code"])
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t)
	base := "/api/sessions/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound, codeNotFound},
		{"missing category", http.MethodPost, base + "/generate", map[string]string{"reference_url": "https://x"}, http.StatusBadRequest, codeInvalid},
		{"missing reference", http.MethodPost, base + "/generate", map[string]string{"category": "Technology"}, http.StatusBadRequest, codeInvalid},
		{"save before generate", http.MethodPost, base + "/save", nil, http.StatusBadRequest, codeInvalid},
		{"copy before save", http.MethodPost, base + "/copy", nil, http.StatusBadRequest, codeInvalid},
		{"edit title outside edit mode", http.MethodPatch, base + "/draft", map[string]string{"title": "x"}, http.StatusBadRequest, codeInvalid},
		{"non-numeric section", http.MethodPatch, base + "/draft/sections/abc", map[string]string{}, http.StatusBadRequest, codeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestSend_RejectedWhileEditing(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t)
	ts.generate(t, id)
	ts.do(t, http.MethodPost, "/api/sessions/"+id+"/edit", nil)

	resp, body := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/send", map[string]string{"emails": "a@x.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, codeConflict, body["code"])
	assert.Empty(t, ts.dispatcher.requests)
}

func TestGenerate_UnknownField(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t)
	resp, body := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/generate", map[string]string{"colour": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid JSON")
}

// =============================================================================
// ARCHIVE
// =============================================================================

type memArchive struct {
	items []domain.Newsletter
}

func (m *memArchive) Get(_ context.Context, id string) (*domain.Newsletter, error) {
	for i := range m.items {
		if m.items[i].ID == id {
			return &m.items[i], nil
		}
	}
	return nil, archive.ErrNotFound
}

func (m *memArchive) FindByTitle(_ context.Context, title string) (*domain.Newsletter, error) {
	for i := range m.items {
		if m.items[i].Title == title {
			return &m.items[i], nil
		}
	}
	return nil, archive.ErrNotFound
}

func (m *memArchive) List(_ context.Context, f archive.ListFilter) ([]domain.Newsletter, int, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, 0, archive.ErrInvalidDocument
	}
	var out []domain.Newsletter
	for _, n := range m.items {
		if f.Category == "" || n.Category == f.Category {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func TestArchiveRoutes(t *testing.T) {
	arch := &memArchive{items: []domain.Newsletter{
		{ID: "n1", Title: "Mars Weekly", Category: domain.CategorySpaceResearch, Sections: []domain.Section{}},
		{ID: "n2", Title: "Chip News", Category: domain.CategoryTechnology, Sections: []domain.Section{}},
	}}
	ts := newTestServer(t, Options{Archive: arch})

	resp, body := ts.do(t, http.MethodGet, "/api/newsletters?category=Technology", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp, body = ts.do(t, http.MethodGet, "/api/newsletters/n1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Mars Weekly", body["title"])

	resp, body = ts.do(t, http.MethodGet, "/api/newsletters/lookup?title=Mars%20Weekly", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "n1", body["id"])

	resp, _ = ts.do(t, http.MethodGet, "/api/newsletters/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/newsletters/lookup", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/newsletters?category=Cooking", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/newsletters?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArchiveRoutes_Disabled(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, body := ts.do(t, http.MethodGet, "/api/newsletters", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeNoArchive, body["code"])
}
