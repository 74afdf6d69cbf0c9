package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rmaia/sitesmith/internal/catalog"
	"github.com/rmaia/sitesmith/internal/generator"
	"github.com/rmaia/sitesmith/internal/interfaces"
	"github.com/rmaia/sitesmith/internal/jobs"
	"github.com/rmaia/sitesmith/internal/logging"
	"github.com/rmaia/sitesmith/internal/naming"
	"github.com/rmaia/sitesmith/internal/preview"
	"github.com/rmaia/sitesmith/internal/store"
)

var (
	ErrEmptyPrompt   = errors.New("prompt is required")
	ErrMissingIDs    = errors.New("userId and projectId are required")
	ErrJobNotFound   = errors.New("job not found")
	ErrNotCancelable = errors.New("job is not running")
)

// Mirrorer pushes a published artifact to an external repository. The
// boolean reports whether the project had a repository link at all.
type Mirrorer interface {
	Sync(ctx context.Context, userID, projectID string, html []byte, message string) (bool, error)
}

// GenerationRequest is one submission to the pipeline. AssetURL is an
// optional public image URL to weave into the generated page.
type GenerationRequest struct {
	UserID    string
	ProjectID string
	Prompt    string
	AssetURL  string
}

// GenerationResult is the payload of a finished job.
type GenerationResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	Subdomain string `json:"subdomain"`
	ProjectID string `json:"projectId"`
	CreatedAt int64  `json:"createdAt"`
}

// Orchestrator runs the prompt-to-published-site pipeline and fronts
// the store for the HTTP layer.
type Orchestrator struct {
	cfg       Config
	gen       interfaces.Generator
	namer     *naming.Service
	store     *store.SQLiteStore
	catalog   *catalog.Catalog
	tracker   *jobs.Tracker
	publisher interfaces.Publisher
	mirror    Mirrorer
	previewer preview.Client
	logger    logging.Logger

	// Serializes concurrent generations for the same project so two
	// submissions cannot interleave stage/promote. Entries are refcounted
	// and removed once no pipeline holds or waits on them.
	projMu   sync.Mutex
	projects map[string]*projectLock

	wg sync.WaitGroup
}

// Deps carries the orchestrator's collaborators. Previewer may be nil
// when VerifyAfterPublish is off.
type Deps struct {
	Generator interfaces.Generator
	Namer     *naming.Service
	Store     *store.SQLiteStore
	Catalog   *catalog.Catalog
	Tracker   *jobs.Tracker
	Publisher interfaces.Publisher
	Mirror    Mirrorer
	Previewer preview.Client
	Logger    logging.Logger
}

func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		gen:       deps.Generator,
		namer:     deps.Namer,
		store:     deps.Store,
		catalog:   deps.Catalog,
		tracker:   deps.Tracker,
		publisher: deps.Publisher,
		mirror:    deps.Mirror,
		previewer: deps.Previewer,
		logger:    deps.Logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		projects:  make(map[string]*projectLock),
	}
}

type projectLock struct {
	mu   sync.Mutex
	refs int
}

// lockProject serializes work on one project. Every call must be paired
// with unlockProject so idle entries get dropped from the map.
func (o *Orchestrator) lockProject(projectID string) *projectLock {
	o.projMu.Lock()
	l, ok := o.projects[projectID]
	if !ok {
		l = &projectLock{}
		o.projects[projectID] = l
	}
	l.refs++
	o.projMu.Unlock()

	l.mu.Lock()
	return l
}

func (o *Orchestrator) unlockProject(projectID string, l *projectLock) {
	l.mu.Unlock()
	o.projMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(o.projects, projectID)
	}
	o.projMu.Unlock()
}

// SubmitGeneration validates the request, registers a job and runs the
// pipeline in the background. It returns the job ID immediately.
func (o *Orchestrator) SubmitGeneration(req GenerationRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if req.UserID == "" || req.ProjectID == "" {
		return "", ErrMissingIDs
	}

	jobID := o.tracker.Create()
	ctx, cancel := context.WithCancel(context.Background())
	o.tracker.RegisterCancel(jobID, cancel)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(ctx, jobID, req)
	}()

	o.logger.Info("generation submitted",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "project_id", Value: req.ProjectID},
		logging.Field{Key: "user_id", Value: req.UserID})
	return jobID, nil
}

func (o *Orchestrator) run(ctx context.Context, jobID string, req GenerationRequest) {
	lock := o.lockProject(req.ProjectID)
	defer o.unlockProject(req.ProjectID, lock)

	if err := ctx.Err(); err != nil {
		o.tracker.MarkError(jobID, fmt.Errorf("job canceled before start: %w", err))
		return
	}

	result, err := o.pipeline(ctx, jobID, req)
	if err != nil {
		o.logger.Error("generation failed",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "project_id", Value: req.ProjectID},
			logging.Field{Key: "error", Value: err.Error()})
		o.tracker.MarkError(jobID, err)
		return
	}
	o.tracker.MarkDone(jobID, result)
}

func (o *Orchestrator) pipeline(ctx context.Context, jobID string, req GenerationRequest) (*GenerationResult, error) {
	// A missing hosting binding marks the first generation of the
	// project; failed attempts may already have left revision rows.
	binding, err := o.store.Binding(ctx, req.ProjectID)
	firstGeneration := false
	if errors.Is(err, store.ErrBindingNotFound) {
		firstGeneration = true
	} else if err != nil {
		return nil, fmt.Errorf("load hosting binding: %w", err)
	}

	o.tracker.EmitStage(jobID, "preparing", "")
	var previous *store.SiteRevision
	if !firstGeneration {
		previous, err = o.store.ActiveRevision(ctx, req.ProjectID)
		if err != nil && !errors.Is(err, store.ErrNoActiveRevision) {
			return nil, fmt.Errorf("load active revision: %w", err)
		}
	}
	fullPrompt := composePrompt(req.Prompt, previous, req.AssetURL)

	o.tracker.EmitStage(jobID, "generating", "")
	genCtx, cancelGen := o.stageContext(ctx)
	raw, err := o.gen.Generate(genCtx, fullPrompt)
	cancelGen()
	if err != nil {
		return nil, fmt.Errorf("generate site: %w", err)
	}
	html, err := generator.CleanHTML(raw)
	if err != nil {
		return nil, fmt.Errorf("clean artifact: %w", err)
	}
	name := generator.SiteName(html, req.Prompt)

	var slug string
	if firstGeneration {
		o.tracker.EmitStage(jobID, "provisioning", "")
		nameCtx, cancelName := o.stageContext(ctx)
		slug = o.namer.DeriveName(nameCtx, req.Prompt)
		cancelName()

		provCtx, cancelProv := o.stageContext(ctx)
		err = o.publisher.Provision(provCtx, slug)
		cancelProv()
		if err != nil {
			return nil, fmt.Errorf("provision subdomain: %w", err)
		}
		if binding, err = o.store.CreateBinding(ctx, req.ProjectID, slug); err != nil {
			return nil, fmt.Errorf("record hosting binding: %w", err)
		}
		if _, err := o.catalog.RegisterListing(ctx, req.ProjectID, req.UserID, slug, name); err != nil {
			return nil, fmt.Errorf("register listing: %w", err)
		}
	} else {
		slug = binding.Subdomain
	}

	staged, _, err := o.store.StageRevision(ctx, &store.SiteRevision{
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		Name:        name,
		Prompt:      req.Prompt,
		HTMLContent: html,
		Subdomain:   slug,
		AssetURL:    req.AssetURL,
	})
	if err != nil {
		return nil, fmt.Errorf("stage revision: %w", err)
	}
	fail := func(cause error) (*GenerationResult, error) {
		if mErr := o.store.MarkRevisionFailed(ctx, staged.ID); mErr != nil {
			o.logger.Error("could not mark revision failed",
				logging.Field{Key: "revision_id", Value: staged.ID},
				logging.Field{Key: "error", Value: mErr.Error()})
		}
		return nil, cause
	}

	o.tracker.EmitStage(jobID, "publishing", "")
	pubCtx, cancelPub := o.stageContext(ctx)
	err = o.publisher.Publish(pubCtx, slug, []byte(html))
	cancelPub()
	if err != nil {
		return fail(fmt.Errorf("publish site: %w", err))
	}

	if o.mirror != nil {
		o.tracker.EmitStage(jobID, "mirroring", "")
		mirCtx, cancelMir := o.stageContext(ctx)
		mirrored, err := o.mirror.Sync(mirCtx, req.UserID, req.ProjectID, []byte(html), "Update "+slug)
		cancelMir()
		if err != nil {
			return fail(fmt.Errorf("mirror site: %w", err))
		}
		if mirrored {
			o.logger.Info("revision mirrored",
				logging.Field{Key: "project_id", Value: req.ProjectID},
				logging.Field{Key: "revision_id", Value: staged.ID})
		}
	}

	o.tracker.EmitStage(jobID, "promoting", "")
	if err := o.store.PromoteRevision(ctx, req.ProjectID, staged.ID); err != nil {
		return fail(fmt.Errorf("promote revision: %w", err))
	}
	if active, total, err := o.store.CheckActiveInvariant(ctx, req.ProjectID); err == nil {
		if total > 0 && active != 1 {
			o.logger.Error("active revision divergence",
				logging.Field{Key: "project_id", Value: req.ProjectID},
				logging.Field{Key: "active", Value: active},
				logging.Field{Key: "total", Value: total})
		}
	}

	o.verify(ctx, jobID, slug)

	return &GenerationResult{
		ID:        staged.ID,
		Name:      name,
		Prompt:    req.Prompt,
		Subdomain: slug,
		ProjectID: req.ProjectID,
		CreatedAt: staged.CreatedAt,
	}, nil
}

// verify fetches the freshly published page and logs divergence. It
// never fails the job: the revision is already live.
func (o *Orchestrator) verify(ctx context.Context, jobID, slug string) {
	if !o.cfg.VerifyAfterPublish || o.previewer == nil {
		return
	}
	o.tracker.EmitStage(jobID, "verifying", "")
	url := fmt.Sprintf("https://%s.%s/", slug, o.cfg.Publisher.BaseDomain)
	verCtx, cancel := o.stageContext(ctx)
	defer cancel()
	res, err := o.previewer.Capture(verCtx, url)
	if err != nil {
		o.logger.Warn("publish verification failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	if res.StatusCode != 200 {
		o.logger.Warn("published site not serving",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "status", Value: res.StatusCode})
	}
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.StageTimeout)
}

func composePrompt(prompt string, previous *store.SiteRevision, assetURL string) string {
	var b strings.Builder
	if previous != nil {
		b.WriteString("Current HTML:\n")
		b.WriteString(previous.HTMLContent)
		b.WriteString("\nApply the requested changes and keep everything not mentioned: ")
	}
	b.WriteString(prompt)
	if assetURL != "" {
		b.WriteString("\nUse this image URL in the site: ")
		b.WriteString(assetURL)
	}
	return b.String()
}

// GetJob returns a job snapshot.
func (o *Orchestrator) GetJob(jobID string) (*jobs.Job, error) {
	job := o.tracker.Get(jobID)
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// JobEvents exposes the live event channel for websocket streaming.
func (o *Orchestrator) JobEvents(jobID string) (chan jobs.Event, error) {
	events, ok := o.tracker.Events(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}
	return events, nil
}

// CancelJob aborts a running job.
func (o *Orchestrator) CancelJob(jobID string) error {
	if o.tracker.Get(jobID) == nil {
		return ErrJobNotFound
	}
	if !o.tracker.Cancel(jobID) {
		return ErrNotCancelable
	}
	return nil
}

// Restore reactivates a previous revision and republishes it.
func (o *Orchestrator) Restore(ctx context.Context, projectID, revisionID string) (*store.SiteRevision, error) {
	lock := o.lockProject(projectID)
	defer o.unlockProject(projectID, lock)

	rev, err := o.store.Restore(ctx, projectID, revisionID)
	if err != nil {
		return nil, err
	}
	pubCtx, cancel := o.stageContext(ctx)
	defer cancel()
	if err := o.publisher.Publish(pubCtx, rev.Subdomain, []byte(rev.HTMLContent)); err != nil {
		return nil, fmt.Errorf("republish restored revision: %w", err)
	}
	return rev, nil
}

// IsNewProject reports whether the project has no revisions at all.
func (o *Orchestrator) IsNewProject(ctx context.Context, projectID string) (bool, error) {
	count, err := o.store.CountRevisions(ctx, projectID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (o *Orchestrator) ListActiveSites(ctx context.Context, userID string) ([]store.SiteRevision, error) {
	return o.store.ListActiveSites(ctx, userID)
}

func (o *Orchestrator) ListPrompts(ctx context.Context, projectID string) ([]store.PromptRecord, error) {
	return o.store.ListPrompts(ctx, projectID)
}

func (o *Orchestrator) DiffRevisions(ctx context.Context, projectID, baseID, headID string) (*store.RevisionDiff, error) {
	return o.store.DiffRevisions(ctx, projectID, baseID, headID)
}

func (o *Orchestrator) Listings(ctx context.Context, userID string) ([]catalog.Listing, error) {
	return o.catalog.ListByUser(ctx, userID)
}

// Close waits for in-flight pipelines and shuts down the tracker.
func (o *Orchestrator) Close() error {
	err := o.tracker.Close()
	o.wg.Wait()
	if cerr := o.gen.Close(); err == nil {
		err = cerr
	}
	if o.previewer != nil {
		if cerr := o.previewer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
