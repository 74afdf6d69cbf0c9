package store

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffRevisions computes a chunked delta between the HTML of two revisions
// belonging to the same project. Equal spans are dropped; callers get only
// what changed.
func (s *SQLiteStore) DiffRevisions(ctx context.Context, projectID, baseID, headID string) (*RevisionDiff, error) {
	base, err := s.GetRevision(ctx, baseID)
	if err != nil {
		return nil, err
	}
	head, err := s.GetRevision(ctx, headID)
	if err != nil {
		return nil, err
	}
	if base.ProjectID != projectID || head.ProjectID != projectID {
		return nil, ErrRevisionNotFound
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(base.HTMLContent, head.HTMLContent, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	out := &RevisionDiff{BaseID: baseID, HeadID: headID, Chunks: []DiffChunk{}}
	for _, d := range diffs {
		var chunkType string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			chunkType = "added"
		case diffmatchpatch.DiffDelete:
			chunkType = "removed"
		case diffmatchpatch.DiffEqual:
			continue
		}
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		out.Chunks = append(out.Chunks, DiffChunk{Type: chunkType, Content: d.Text})
	}
	return out, nil
}
