package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	tr := NewTracker(time.Hour, interfaces.NewTestLogger(testing.Verbose()))
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestJobLifecycle(t *testing.T) {
	tr := newTracker(t)

	id := tr.Create()
	job := tr.Get(id)
	if job == nil || job.Status != StatusProcessing {
		t.Fatalf("new job = %+v, want processing", job)
	}

	tr.MarkDone(id, map[string]string{"subdomain": "bakery"})
	job = tr.Get(id)
	if job.Status != StatusDone || job.EndedAt == nil {
		t.Fatalf("finished job = %+v", job)
	}

	// A terminal job must not be flipped back.
	tr.MarkError(id, errors.New("late failure"))
	if got := tr.Get(id); got.Status != StatusDone {
		t.Fatalf("status after late MarkError = %q", got.Status)
	}
}

func TestGetUnknownJob(t *testing.T) {
	tr := newTracker(t)
	if job := tr.Get("nope"); job != nil {
		t.Fatalf("Get(unknown) = %+v, want nil", job)
	}
}

func TestEventsCloseOnFinish(t *testing.T) {
	tr := newTracker(t)
	id := tr.Create()

	tr.EmitStage(id, "generating", "")
	tr.MarkError(id, errors.New("model refused"))

	events, ok := tr.Events(id)
	if !ok {
		t.Fatal("Events returned no channel")
	}
	got := 0
	for range events {
		got++
	}
	if got != 1 {
		t.Fatalf("drained %d events, want 1", got)
	}
}

func TestEmitStageNeverBlocks(t *testing.T) {
	tr := newTracker(t)
	id := tr.Create()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < eventBuffer*3; i++ {
			tr.EmitStage(id, "publishing", "")
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EmitStage blocked with no subscriber")
	}
}

func TestCancel(t *testing.T) {
	tr := newTracker(t)
	id := tr.Create()

	ctx, cancel := context.WithCancel(context.Background())
	tr.RegisterCancel(id, cancel)

	if !tr.Cancel(id) {
		t.Fatal("Cancel reported no running job")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("context not cancelled")
	}

	if tr.Cancel(id) {
		t.Fatal("second Cancel should report false")
	}
}

func TestReapDropsOldFinishedJobs(t *testing.T) {
	tr := NewTracker(time.Nanosecond, interfaces.NewTestLogger(testing.Verbose()))
	t.Cleanup(func() { tr.Close() })

	finished := tr.Create()
	tr.MarkDone(finished, nil)
	running := tr.Create()

	time.Sleep(5 * time.Millisecond)
	tr.reap()

	if tr.Get(finished) != nil {
		t.Fatal("finished job survived retention window")
	}
	if tr.Get(running) == nil {
		t.Fatal("running job was reaped")
	}
}
