package store

// Revision lifecycle statuses.
//
// A revision is staged as pending while its artifact is being published,
// promoted to active once the hosting target has it, and marked failed if
// publishing never succeeded. At most one revision per project is active;
// everything superseded is inactive. Prompt records mirror the status of the
// revision they produced.
const (
	StatusPending  = "pending"
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusFailed   = "failed"
)

// SiteRevision is one generated artifact plus its metadata. Revisions are
// never deleted; history is soft.
type SiteRevision struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	ProjectID   string `json:"projectId"`
	Name        string `json:"name"`
	Prompt      string `json:"prompt"`
	HTMLContent string `json:"htmlContent"`
	Subdomain   string `json:"subdomain"`
	AssetURL    string `json:"assetUrl,omitempty"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
}

// PromptRecord is an append-only log entry pairing a prompt with the
// revision it produced.
type PromptRecord struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	ProjectID  string `json:"projectId"`
	Prompt     string `json:"prompt"`
	RevisionID string `json:"revisionId"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"createdAt"`
}

// HostingBinding ties a project to its provisioned publishing address.
// It is created once, on the first generation, and its presence is what
// distinguishes a revision run from a first run.
type HostingBinding struct {
	ProjectID    string `json:"projectId"`
	Subdomain    string `json:"subdomain"`
	RepoFullName string `json:"repoFullName,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// DiffChunk is a single added or removed span between two revisions.
type DiffChunk struct {
	Type    string `json:"type"` // "added" | "removed"
	Content string `json:"content"`
}

// RevisionDiff is the chunked delta between two revisions' HTML.
type RevisionDiff struct {
	BaseID string      `json:"baseId"`
	HeadID string      `json:"headId"`
	Chunks []DiffChunk `json:"chunks"`
}
