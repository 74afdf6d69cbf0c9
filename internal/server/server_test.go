package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/rmaia/sitesmith/internal/app"
	"github.com/rmaia/sitesmith/internal/assets"
	"github.com/rmaia/sitesmith/internal/catalog"
	"github.com/rmaia/sitesmith/internal/interfaces"
	"github.com/rmaia/sitesmith/internal/jobs"
	"github.com/rmaia/sitesmith/internal/naming"
	"github.com/rmaia/sitesmith/internal/store"
	"github.com/rmaia/sitesmith/internal/testutil"
)

const testArtifact = `<!DOCTYPE html><html><head><title>Bakery</title></head><body><h1>Fresh bread</h1></body></html>`

var dbSeq int

func newTestServer(t *testing.T) (*Server, *testutil.DummyPublisher) {
	t.Helper()
	dbSeq++
	db, err := sql.Open("sqlite", fmt.Sprintf("file:srv%d?mode=memory&cache=shared", dbSeq))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger := interfaces.NewTestLogger(testing.Verbose())
	st, err := store.NewSQLiteStore(db, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	cat, err := catalog.NewCatalog(db, logger)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	assetStore, err := assets.NewStore(t.TempDir(), "http://localhost/uploads", logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	pub := &testutil.DummyPublisher{}
	cfg := app.DefaultConfig()
	cfg.StageTimeout = 5 * time.Second

	orch := app.NewOrchestrator(cfg, app.Deps{
		Generator: &testutil.DummyGenerator{Output: testArtifact},
		Namer:     naming.NewService(&testutil.DummyGenerator{Output: "bakery"}, logger),
		Store:     st,
		Catalog:   cat,
		Tracker:   jobs.NewTracker(time.Hour, logger),
		Publisher: pub,
		Mirror:    &testutil.DummyMirror{},
		Logger:    logger,
	})

	s := newServerWith(Config{App: cfg, Logger: logger}, orch, assetStore, logger)
	t.Cleanup(s.Close)
	return s, pub
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func awaitDone(t *testing.T, s *Server, jobID string) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Orchestrator().GetJob(jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.Status != jobs.StatusProcessing {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never finished")
	return nil
}

func generateSite(t *testing.T, s *Server, prompt string) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/sites/generate", map[string]string{
		"prompt":    prompt,
		"projectId": "p1",
		"userId":    "u1",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate status = %d body=%s", rec.Code, rec.Body)
	}
	var resp struct {
		Success bool   `json:"success"`
		JobID   string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.JobID == "" {
		t.Fatalf("response = %+v", resp)
	}
	job := awaitDone(t, s, resp.JobID)
	if job.Status != jobs.StatusDone {
		t.Fatalf("job = %+v", job)
	}
	return resp.JobID
}

func TestGenerateEndpoint(t *testing.T) {
	s, pub := newTestServer(t)

	jobID := generateSite(t, s, "a site for my bakery")
	if pub.PublishCount() != 1 {
		t.Fatalf("publishes = %d", pub.PublishCount())
	}

	rec := doJSON(t, s, http.MethodGet, "/api/sites/jobs/"+jobID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("job status = %d", rec.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Job     struct {
			Status string `json:"status"`
		} `json:"job"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.Job.Status != jobs.StatusDone {
		t.Fatalf("job response = %s", rec.Body)
	}
}

func TestGenerateRejectsBlankPrompt(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/sites/generate", map[string]string{
		"prompt":    "   ",
		"projectId": "p1",
		"userId":    "u1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestGenerateMultipartWithAsset(t *testing.T) {
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("prompt", "a gallery site")
	mw.WriteField("projectId", "p1")
	mw.WriteField("userId", "u1")
	fw, err := mw.CreateFormFile("asset", "photo.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := png.Encode(fw, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sites/generate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	awaitDone(t, s, resp.JobID)
}

func TestGetUnknownJob(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/sites/jobs/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListSitesRequiresUserID(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/sites", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListSitesAndPrompts(t *testing.T) {
	s, _ := newTestServer(t)
	generateSite(t, s, "a site for my bakery")

	rec := doJSON(t, s, http.MethodGet, "/api/sites?userId=u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sites status = %d", rec.Code)
	}
	var sitesResp struct {
		Sites []struct {
			Subdomain   string `json:"subdomain"`
			HTMLContent string `json:"htmlContent"`
		} `json:"sites"`
	}
	json.Unmarshal(rec.Body.Bytes(), &sitesResp)
	if len(sitesResp.Sites) != 1 || sitesResp.Sites[0].Subdomain != "bakery" {
		t.Fatalf("sites = %s", rec.Body)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/sites/p1/prompts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("prompts status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "a site for my bakery") {
		t.Fatalf("prompts = %s", rec.Body)
	}
}

func TestIsNewProjectEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/sites/new/p1", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "true" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body)
	}

	generateSite(t, s, "a site for my bakery")

	rec = doJSON(t, s, http.MethodGet, "/api/sites/new/p1", nil)
	if strings.TrimSpace(rec.Body.String()) != "false" {
		t.Fatalf("body = %q", rec.Body)
	}
}

func TestRestoreEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	firstJob := generateSite(t, s, "a site for my bakery")
	generateSite(t, s, "redesign everything")

	job, _ := s.Orchestrator().GetJob(firstJob)
	result := job.Result.(*app.GenerationResult)

	rec := doJSON(t, s, http.MethodPost, "/api/sites/restore", map[string]string{
		"revisionId": result.ID,
		"projectId":  "p1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Fresh bread") {
		t.Fatalf("restore body = %s", rec.Body)
	}
}

func TestRestoreUnknownRevision(t *testing.T) {
	s, _ := newTestServer(t)
	generateSite(t, s, "a site for my bakery")

	rec := doJSON(t, s, http.MethodPost, "/api/sites/restore", map[string]string{
		"revisionId": "nope",
		"projectId":  "p1",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestDiffEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	firstJob := generateSite(t, s, "a site for my bakery")
	secondJob := generateSite(t, s, "change the header")

	first, _ := s.Orchestrator().GetJob(firstJob)
	second, _ := s.Orchestrator().GetJob(secondJob)
	baseID := first.Result.(*app.GenerationResult).ID
	headID := second.Result.(*app.GenerationResult).ID

	rec := doJSON(t, s, http.MethodGet, "/api/sites/p1/diff?base="+baseID+"&head="+headID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("diff status = %d body=%s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/sites/p1/diff", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("diff without params status = %d", rec.Code)
	}
}

func TestProjectsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	generateSite(t, s, "a site for my bakery")

	rec := doJSON(t, s, http.MethodGet, "/api/projects?userId=u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"slug":"bakery"`) {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestJobWebSocketStreamsEvents(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/sites/generate", map[string]string{
		"prompt":    "a site for my bakery",
		"projectId": "p1",
		"userId":    "u1",
	})
	var resp struct {
		JobID string `json:"jobId"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	awaitDone(t, s, resp.JobID)

	srv := httptest.NewServer(s)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/jobs/" + resp.JobID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Buffered stage events arrive first, then the final snapshot.
	sawDone := false
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !sawDone {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (sawDone=%v)", err, sawDone)
		}
		if strings.Contains(string(msg), `"status":"done"`) {
			sawDone = true
		}
	}
}
