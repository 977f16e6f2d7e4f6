package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/dgallion1/notesmith/internal/stage"
)

func TestMain(m *testing.M) {
	// The genai client starts an opencensus view worker that never exits.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("calc", stage.Skeleton)
	if job.Status() != StatusQueued {
		t.Fatalf("new job status = %q", job.Status())
	}
	for _, tr := range []struct {
		status JobStatus
		phase  string
	}{
		{StatusRunning, "skeleton"},
		{StatusCompleted, "done"},
	} {
		before := job.Snapshot().UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)
		snap := job.Snapshot()
		if snap.Status != tr.status || snap.Phase != tr.phase {
			t.Errorf("got %q/%q, want %q/%q", snap.Status, snap.Phase, tr.status, tr.phase)
		}
		if !snap.UpdatedAt.After(before) {
			t.Errorf("UpdatedAt did not advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewJob("d", stage.Skeleton).ID
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestJob_SnapshotIsACopy(t *testing.T) {
	job := NewJob("calc", stage.Skeleton)
	job.AddError("first")
	snap := job.Snapshot()
	snap.Errors[0] = "changed"
	job.AddError("second")
	if diff := cmp.Diff([]string{"first", "second"}, job.Snapshot().Errors); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
	if empty := NewJob("x", stage.Skeleton).Snapshot(); empty.Errors == nil || empty.Results == nil {
		t.Error("snapshot slices should be non-nil for JSON")
	}
}

func TestJobStatus_Done(t *testing.T) {
	for s, want := range map[JobStatus]bool{
		StatusQueued: false, StatusRunning: false,
		StatusCompleted: true, StatusPartial: true, StatusFailed: true, StatusCancelled: true,
	} {
		if got := s.Done(); got != want {
			t.Errorf("%s.Done() = %v, want %v", s, got, want)
		}
	}
}

func TestJobStore_CleanupKeepsActiveJobs(t *testing.T) {
	s := NewJobStore(time.Nanosecond)
	done := NewJob("a", stage.Skeleton)
	done.SetStatus(StatusCompleted, "done")
	running := NewJob("a", stage.Enhance)
	running.SetStatus(StatusRunning, "enhance")
	s.Put(done)
	s.Put(running)
	time.Sleep(time.Millisecond)
	s.Cleanup()
	if s.Get(done.ID) != nil {
		t.Error("finished job not evicted")
	}
	if s.Get(running.ID) == nil {
		t.Error("running job evicted")
	}
}

func TestJobStore_ListFiltersAndSorts(t *testing.T) {
	s := NewJobStore(time.Hour)
	a := NewJob("a", stage.Skeleton)
	time.Sleep(time.Millisecond)
	b := NewJob("a", stage.Enhance)
	c := NewJob("b", stage.Patch)
	for _, j := range []*Job{a, b, c} {
		s.Put(j)
	}
	got := s.List("a")
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Errorf("List(a) = %+v", got)
	}
	if n := len(s.List("")); n != 3 {
		t.Errorf("List() returned %d jobs", n)
	}
}

// fakeRunner records calls and fails the stages it is told to.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []stage.Stage
	fail    map[stage.Stage]error
	partial map[stage.Stage]bool
	block   chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, st stage.Stage, docID string) (stage.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, st)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return stage.Result{Stage: st, DocumentID: docID}, ctx.Err()
		}
	}
	res := stage.Result{Stage: st, DocumentID: docID, SectionsWritten: 1}
	if f.partial[st] {
		res.Failures = []stage.Failure{{Title: "x", Err: "boom"}}
	}
	return res, f.fail[st]
}

func waitDone(t *testing.T, job *Job) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job.Status().Done() {
			return job.Snapshot()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish, status %s", job.ID, job.Status())
	return JobSnapshot{}
}

func TestOrchestrator_RunsStagesInOrder(t *testing.T) {
	r := &fakeRunner{}
	o := NewOrchestrator(Config{WorkerCount: 2, MaxQueueSize: 4}, r, nil)
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.Submit("calc", stage.Skeleton, stage.Enhance, stage.Patch)
	if err != nil {
		t.Fatal(err)
	}
	snap := waitDone(t, job)
	if snap.Status != StatusCompleted {
		t.Errorf("status = %s, errors %v", snap.Status, snap.Errors)
	}
	if diff := cmp.Diff([]stage.Stage{stage.Skeleton, stage.Enhance, stage.Patch}, r.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if len(snap.Results) != 3 {
		t.Errorf("got %d results", len(snap.Results))
	}
	if o.GetJob(job.ID) != job {
		t.Error("GetJob did not return the submitted job")
	}
}

func TestOrchestrator_StopsAtFailedStage(t *testing.T) {
	r := &fakeRunner{fail: map[stage.Stage]error{stage.Enhance: errors.New("no skeleton")}}
	o := NewOrchestrator(Config{WorkerCount: 1, MaxQueueSize: 1}, r, nil)
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.Submit("calc", stage.Enhance, stage.Patch)
	if err != nil {
		t.Fatal(err)
	}
	snap := waitDone(t, job)
	if snap.Status != StatusFailed || snap.Phase != string(stage.Enhance) {
		t.Errorf("status = %s/%s", snap.Status, snap.Phase)
	}
	if len(r.calls) != 1 {
		t.Errorf("patch ran after failed enhance: %v", r.calls)
	}
	if len(snap.Errors) != 1 {
		t.Errorf("errors = %v", snap.Errors)
	}
}

func TestOrchestrator_PartialWhenSectionsFail(t *testing.T) {
	r := &fakeRunner{partial: map[stage.Stage]bool{stage.Skeleton: true}}
	o := NewOrchestrator(Config{WorkerCount: 1, MaxQueueSize: 1}, r, nil)
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.Submit("calc", stage.Skeleton)
	if err != nil {
		t.Fatal(err)
	}
	if snap := waitDone(t, job); snap.Status != StatusPartial {
		t.Errorf("status = %s, want partial", snap.Status)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	o := NewOrchestrator(Config{WorkerCount: 1, MaxQueueSize: 1}, r, nil)
	o.Start(context.Background())

	first, err := o.Submit("calc", stage.Skeleton)
	if err != nil {
		t.Fatal(err)
	}
	// Wait for the worker to pick up the first job so the queue is empty.
	for first.Status() != StatusRunning {
		time.Sleep(time.Millisecond)
	}
	queued, err := o.Submit("calc", stage.Skeleton)
	if err != nil {
		t.Fatal(err)
	}
	rejected, err := o.Submit("calc", stage.Skeleton)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if rejected.Status() != StatusFailed {
		t.Errorf("rejected job status = %s", rejected.Status())
	}
	if o.QueueDepth() != 1 {
		t.Errorf("queue depth = %d", o.QueueDepth())
	}

	o.Stop()
	if s := first.Status(); s != StatusCancelled {
		t.Errorf("running job status after Stop = %s", s)
	}
	if s := queued.Status(); s != StatusCancelled {
		t.Errorf("queued job status after Stop = %s", s)
	}
}

func TestOrchestrator_SubmitNoStages(t *testing.T) {
	o := NewOrchestrator(Config{}, &fakeRunner{}, nil)
	if _, err := o.Submit("calc"); err == nil {
		t.Error("expected error")
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	o := NewOrchestrator(Config{WorkerCount: 1, MaxQueueSize: 1}, &fakeRunner{}, nil)
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	job, err := o.Submit("calc", stage.Skeleton)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if job != nil {
		t.Errorf("job = %+v, want nil", job)
	}
	if n := len(o.Jobs("")); n != 0 {
		t.Errorf("%d jobs recorded after Stop", n)
	}
}
