// Package server is the HTTP + WebSocket API surface in front of the
// generation pipeline.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/rmaia/sitesmith/internal/app"
	"github.com/rmaia/sitesmith/internal/assets"
	"github.com/rmaia/sitesmith/internal/catalog"
	"github.com/rmaia/sitesmith/internal/generator"
	"github.com/rmaia/sitesmith/internal/jobs"
	"github.com/rmaia/sitesmith/internal/logging"
	"github.com/rmaia/sitesmith/internal/mirror"
	"github.com/rmaia/sitesmith/internal/naming"
	"github.com/rmaia/sitesmith/internal/preview"
	"github.com/rmaia/sitesmith/internal/publisher"
	"github.com/rmaia/sitesmith/internal/store"

	_ "modernc.org/sqlite" // SQLite driver
)

const maxUploadBytes = 10 << 20

// Server owns the router, the orchestrator and the asset store.
type Server struct {
	cfg      Config
	orch     *app.Orchestrator
	assets   *assets.Store
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	db       *sql.DB
}

// NewServer wires the full stack from configuration: store, catalog,
// generator backend, publisher, mirror, preview and the orchestrator.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	if err := os.MkdirAll(cfg.App.StorageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.App.StorageRoot, "sites.db"))
	if err != nil {
		return nil, fmt.Errorf("opening site database: %w", err)
	}

	st, err := store.NewSQLiteStore(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating site store: %w", err)
	}
	cat, err := catalog.NewCatalog(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog: %w", err)
	}

	gen, err := generator.NewGenerator(cfg.App.Generator, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	pub, err := publisher.NewHostingPublisher(cfg.App.Publisher, logger, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	links := mirror.NewStaticLinks()
	for projectID, link := range cfg.App.MirrorLinks {
		links.Set(projectID, mirror.RepoLink{RepoFullName: link.Repo, Token: link.Token})
	}

	var previewer preview.Client
	if cfg.App.VerifyAfterPublish {
		previewer, err = preview.NewClient(cfg.App.Preview, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating preview client: %w", err)
		}
	}

	assetStore, err := assets.NewStore(filepath.Join(cfg.App.StorageRoot, "uploads"), cfg.App.PublicBaseURL, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating asset store: %w", err)
	}

	orch := app.NewOrchestrator(cfg.App, app.Deps{
		Generator: gen,
		Namer:     naming.NewService(gen, logger),
		Store:     st,
		Catalog:   cat,
		Tracker:   jobs.NewTracker(cfg.App.JobRetention, logger),
		Publisher: pub,
		Mirror:    mirror.NewGitHubMirror(links, logger),
		Previewer: previewer,
		Logger:    logger,
	})

	s := newServerWith(cfg, orch, assetStore, logger)
	s.db = db
	return s, nil
}

// newServerWith assembles the HTTP surface around an existing
// orchestrator. Tests use it to inject fakes.
func newServerWith(cfg Config, orch *app.Orchestrator, assetStore *assets.Store, logger logging.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		orch:   orch,
		assets: assetStore,
		router: chi.NewRouter(),
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
	}
	s.routes()
	return s
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orch
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	r.Options("/api/sites/generate", s.optionsHandler("POST"))
	r.Options("/api/sites/restore", s.optionsHandler("POST"))
	r.Options("/api/sites", s.optionsHandler("GET"))
	r.Options("/api/sites/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/api/projects", s.optionsHandler("GET"))

	r.Post("/api/sites/generate", s.handleGenerate)
	r.Get("/api/sites/jobs/{jobID}", s.handleGetJob)
	r.Delete("/api/sites/jobs/{jobID}", s.handleCancelJob)
	r.Get("/ws/jobs/{jobID}", s.handleJobWS)

	r.Get("/api/sites", s.handleListSites)
	r.Get("/api/sites/new/{projectID}", s.handleIsNewProject)
	r.Get("/api/sites/{projectID}/prompts", s.handleListPrompts)
	r.Get("/api/sites/{projectID}/diff", s.handleDiff)
	r.Post("/api/sites/restore", s.handleRestore)

	r.Get("/api/projects", s.handleListProjects)

	if s.assets != nil {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.assets.Dir())))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	// doc.json comes from the package produced by the go:generate
	// directive in swagger.go; run `go generate ./...` and blank-import
	// the generated docs package in cmd/sitesmith to serve the spec.
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}
	if r.Body != nil && r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the orchestrator and underlying resources.
func (s *Server) Close() {
	if s.orch != nil {
		s.orch.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	addr := s.cfg.ListenAddr
	if addr == "" {
		addr = s.cfg.App.ListenAddr
	}
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Message: msg})
}

// --- HTTP handlers ---

// handleGenerate accepts JSON or multipart form submissions. Multipart
// may carry an image under the "asset" field; the stored copy's public
// URL is handed to the generator.
//
// @Summary Start a site generation job
// @Accept json,mpfd
// @Produce json
// @Success 202 {object} generateResponse
// @Failure 400 {object} errorResponse
// @Router /api/sites/generate [post]
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseGenerateRequest(r)
	if err != nil {
		s.logger.Warn("parsing generate request", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.orch.SubmitGeneration(req)
	if err != nil {
		if errors.Is(err, app.ErrEmptyPrompt) || errors.Is(err, app.ErrMissingIDs) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Warn("submitting generation", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, generateResponse{Success: true, JobID: jobID})
}

func (s *Server) parseGenerateRequest(r *http.Request) (app.GenerationRequest, error) {
	var req app.GenerationRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return req, fmt.Errorf("invalid multipart form: %w", err)
		}
		req.Prompt = r.FormValue("prompt")
		req.ProjectID = r.FormValue("projectId")
		req.UserID = r.FormValue("userId")

		file, header, err := r.FormFile("asset")
		if err == nil {
			defer file.Close()
			if s.assets == nil {
				return req, errors.New("asset uploads are not enabled")
			}
			name, err := s.assets.Save(file, header.Filename)
			if err != nil {
				return req, fmt.Errorf("storing asset: %w", err)
			}
			req.AssetURL = s.assets.PublicURL(name)
		} else if !errors.Is(err, http.ErrMissingFile) {
			return req, fmt.Errorf("reading asset: %w", err)
		}
		return req, nil
	}

	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return req, errors.New("invalid JSON")
	}
	req.Prompt = body.Prompt
	req.ProjectID = body.ProjectID
	req.UserID = body.UserID
	req.AssetURL = body.AssetURL
	return req, nil
}

// @Summary Get job status
// @Produce json
// @Success 200 {object} jobResponse
// @Failure 404 {object} errorResponse
// @Router /api/sites/jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.orch.GetJob(jobID)
	if err != nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{Success: true, Job: job})
}

// @Summary Cancel a running job
// @Produce json
// @Success 204
// @Failure 404 {object} errorResponse
// @Router /api/sites/jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	err := s.orch.CancelJob(jobID)
	switch {
	case errors.Is(err, app.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, app.ErrNotCancelable):
		writeError(w, http.StatusConflict, "job already finished")
	default:
		s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
		writeJSON(w, http.StatusNoContent, nil)
	}
}

// handleJobWS streams progress events for a job, then the final job
// snapshot once the channel closes.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	events, err := s.orch.JobEvents(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected.
			return
		}
	}

	if job, err := s.orch.GetJob(jobID); err == nil {
		_ = conn.WriteJSON(job)
	}
}

// @Summary List a user's active sites
// @Produce json
// @Success 200 {object} sitesResponse
// @Failure 400 {object} errorResponse
// @Router /api/sites [get]
func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	sites, err := s.orch.ListActiveSites(r.Context(), userID)
	if err != nil {
		s.logger.Warn("listing sites", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sitesResponse{Success: true, Sites: sites})
}

// @Summary List prompt history for a project
// @Produce json
// @Success 200 {object} promptsResponse
// @Router /api/sites/{projectID}/prompts [get]
func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	prompts, err := s.orch.ListPrompts(r.Context(), projectID)
	if err != nil {
		s.logger.Warn("listing prompts", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, promptsResponse{Success: true, Prompts: prompts})
}

// @Summary Diff two revisions of a project
// @Produce json
// @Success 200 {object} diffResponse
// @Failure 404 {object} errorResponse
// @Router /api/sites/{projectID}/diff [get]
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	baseID := r.URL.Query().Get("base")
	headID := r.URL.Query().Get("head")
	if baseID == "" || headID == "" {
		writeError(w, http.StatusBadRequest, "base and head are required")
		return
	}

	diff, err := s.orch.DiffRevisions(r.Context(), projectID, baseID, headID)
	if errors.Is(err, store.ErrRevisionNotFound) {
		writeError(w, http.StatusNotFound, "revision not found")
		return
	}
	if err != nil {
		s.logger.Warn("diffing revisions", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, diffResponse{Success: true, Diff: diff})
}

// @Summary Restore a previous revision
// @Accept json
// @Produce json
// @Success 200 {object} restoreResponse
// @Failure 404 {object} errorResponse
// @Router /api/sites/restore [post]
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var body restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.RevisionID == "" || body.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "revisionId and projectId are required")
		return
	}

	rev, err := s.orch.Restore(r.Context(), body.ProjectID, body.RevisionID)
	if errors.Is(err, store.ErrRevisionNotFound) {
		writeError(w, http.StatusNotFound, "revision not found")
		return
	}
	if err != nil {
		s.logger.Warn("restoring revision", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, restoreResponse{Success: true, HTMLContent: rev.HTMLContent})
}

// @Summary Report whether a project has any revisions yet
// @Produce json
// @Success 200 {boolean} boolean
// @Router /api/sites/new/{projectID} [get]
func (s *Server) handleIsNewProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	isNew, err := s.orch.IsNewProject(r.Context(), projectID)
	if err != nil {
		s.logger.Warn("checking project", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, isNew)
}

// @Summary List a user's project listings
// @Produce json
// @Success 200 {object} projectsResponse
// @Failure 400 {object} errorResponse
// @Router /api/projects [get]
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	listings, err := s.orch.Listings(r.Context(), userID)
	if err != nil {
		s.logger.Warn("listing projects", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projectsResponse{Success: true, Projects: listings})
}
