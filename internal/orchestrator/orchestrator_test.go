package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stemforge/api/internal/adapter"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/store"
)

// recorderBroadcaster captures broadcasts in order.
type recorderBroadcaster struct {
	mu        sync.Mutex
	progress  []int
	phases    []model.JobPhase
	completes int
	errors    []string
}

func (b *recorderBroadcaster) BroadcastProgress(jobID string, progress int, phase model.JobPhase, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = append(b.progress, progress)
	b.phases = append(b.phases, phase)
}

func (b *recorderBroadcaster) BroadcastComplete(jobID string, result interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completes++
}

func (b *recorderBroadcaster) BroadcastError(jobID string, code, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, code)
}

func (b *recorderBroadcaster) progressSeq() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.progress...)
}

// noopScheduler leaves jobs queued; tests invoke Execute directly.
type noopScheduler struct {
	scheduled []string
	err       error
}

func (s *noopScheduler) Schedule(ctx context.Context, jobID string) error {
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, jobID)
	return nil
}

type fakeImporter struct {
	run      func(ctx context.Context, in adapter.ImportInput, onProgress func(adapter.ImportProgress)) (adapter.ArtifactRef, error)
	cleanups int
}

func (f *fakeImporter) Run(ctx context.Context, in adapter.ImportInput, onProgress func(adapter.ImportProgress)) (adapter.ArtifactRef, error) {
	if f.run == nil {
		return adapter.ArtifactRef{Path: "/work/source.mp3"}, nil
	}
	return f.run(ctx, in, onProgress)
}

func (f *fakeImporter) Cleanup(ctx context.Context, jobID string) error {
	f.cleanups++
	return nil
}

type fakeTransformer struct {
	run      func(ctx context.Context, in adapter.TransformInput, onProgress func(adapter.TransformProgress)) (adapter.StemSet, error)
	cleanups int
}

func (f *fakeTransformer) Run(ctx context.Context, in adapter.TransformInput, onProgress func(adapter.TransformProgress)) (adapter.StemSet, error) {
	if f.run == nil {
		return adapter.StemSet{model.StemVocals: {Path: "/work/vocals.wav"}}, nil
	}
	return f.run(ctx, in, onProgress)
}

func (f *fakeTransformer) Cleanup(ctx context.Context, jobID string) error {
	f.cleanups++
	return nil
}

type fakeFinalizer struct {
	run      func(ctx context.Context, in adapter.FinalizeInput, onProgress func(adapter.FinalizeProgress)) (*model.FinalArtifactSet, error)
	cleanups int
}

func (f *fakeFinalizer) Run(ctx context.Context, in adapter.FinalizeInput, onProgress func(adapter.FinalizeProgress)) (*model.FinalArtifactSet, error) {
	if f.run == nil {
		return &model.FinalArtifactSet{JobID: in.JobID}, nil
	}
	return f.run(ctx, in, onProgress)
}

func (f *fakeFinalizer) Cleanup(ctx context.Context, jobID string) error {
	f.cleanups++
	return nil
}

type testRig struct {
	orch        *Orchestrator
	store       *store.MemoryStore
	broadcaster *recorderBroadcaster
	scheduler   *noopScheduler
	importer    *fakeImporter
	transformer *fakeTransformer
	finalizer   *fakeFinalizer
}

func newTestRig() *testRig {
	rig := &testRig{
		store:       store.NewMemoryStore(),
		broadcaster: &recorderBroadcaster{},
		scheduler:   &noopScheduler{},
		importer:    &fakeImporter{},
		transformer: &fakeTransformer{},
		finalizer:   &fakeFinalizer{},
	}
	rig.orch = New(rig.store, rig.broadcaster, rig.scheduler, rig.importer, rig.transformer, rig.finalizer, 0)
	return rig
}

func (rig *testRig) createJob(t *testing.T, req *model.CreateJobRequest) string {
	t.Helper()
	resp, err := rig.orch.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return resp.JobID
}

func (rig *testRig) loadJob(t *testing.T, jobID string) *model.Job {
	t.Helper()
	job, err := rig.store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	return job
}

func importRequest() *model.CreateJobRequest {
	return &model.CreateJobRequest{
		Kind:      model.JobKindImportAndProcess,
		SourceURL: "https://media.example.com/track.mp3",
	}
}

func processRequest() *model.CreateJobRequest {
	return &model.CreateJobRequest{
		Kind:         model.JobKindProcessOnly,
		ArtifactPath: "/uploads/track.wav",
	}
}

func TestCreateJobQueuesAndSchedules(t *testing.T) {
	rig := newTestRig()

	resp, err := rig.orch.CreateJob(context.Background(), importRequest())
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if resp.Status != model.JobPhaseQueued {
		t.Errorf("status = %s, want queued", resp.Status)
	}
	if len(rig.scheduler.scheduled) != 1 || rig.scheduler.scheduled[0] != resp.JobID {
		t.Errorf("scheduled = %v", rig.scheduler.scheduled)
	}

	job := rig.loadJob(t, resp.JobID)
	if job.Phase != model.JobPhaseQueued || job.Progress != 0 {
		t.Errorf("persisted job: phase=%s progress=%d", job.Phase, job.Progress)
	}
}

func TestCreateJobValidation(t *testing.T) {
	rig := newTestRig()

	cases := []*model.CreateJobRequest{
		{Kind: model.JobKindImportAndProcess},
		{Kind: model.JobKindProcessOnly},
		{Kind: "remix"},
	}
	for _, req := range cases {
		_, err := rig.orch.CreateJob(context.Background(), req)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("req %+v: err = %v, want ValidationError", req, err)
		}
	}
	if len(rig.scheduler.scheduled) != 0 {
		t.Errorf("no jobs should be scheduled, got %v", rig.scheduler.scheduled)
	}
}

func TestCreateJobScheduleFailureMarksJobFailed(t *testing.T) {
	rig := newTestRig()
	rig.scheduler.err = errors.New("queue unavailable")

	_, err := rig.orch.CreateJob(context.Background(), importRequest())
	if err == nil {
		t.Fatal("expected error from CreateJob")
	}
}

func TestExecuteFullPipelineProgressSequence(t *testing.T) {
	rig := newTestRig()

	rig.importer.run = func(ctx context.Context, in adapter.ImportInput, onProgress func(adapter.ImportProgress)) (adapter.ArtifactRef, error) {
		onProgress(adapter.ImportProgress{BytesDone: 500, BytesTotal: 1000})
		return adapter.ArtifactRef{Path: "/work/source.mp3"}, nil
	}
	rig.transformer.run = func(ctx context.Context, in adapter.TransformInput, onProgress func(adapter.TransformProgress)) (adapter.StemSet, error) {
		onProgress(adapter.TransformProgress{Segment: 0, SegmentTotal: 10, ModelIndex: 0, ModelCount: 2})
		onProgress(adapter.TransformProgress{Segment: 10, SegmentTotal: 10, ModelIndex: 1, ModelCount: 2})
		return adapter.StemSet{model.StemVocals: {Path: "/work/vocals.wav"}}, nil
	}
	rig.finalizer.run = func(ctx context.Context, in adapter.FinalizeInput, onProgress func(adapter.FinalizeProgress)) (*model.FinalArtifactSet, error) {
		onProgress(adapter.FinalizeProgress{StepsDone: 1, StepsTotal: 1})
		return &model.FinalArtifactSet{JobID: in.JobID}, nil
	}

	jobID := rig.createJob(t, importRequest())
	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// Transition boundaries and mapped samples, in order. The first
	// transform sample maps to the 30 boundary already held and is
	// silently dropped.
	want := []int{0, 15, 30, 89, 90, 99, 100}
	got := rig.broadcaster.progressSeq()
	if len(got) != len(want) {
		t.Fatalf("progress sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress sequence = %v, want %v", got, want)
		}
	}
	if rig.broadcaster.completes != 1 {
		t.Errorf("completes = %d, want 1", rig.broadcaster.completes)
	}

	job := rig.loadJob(t, jobID)
	if job.Phase != model.JobPhaseCompleted || job.Progress != 100 {
		t.Errorf("job: phase=%s progress=%d", job.Phase, job.Progress)
	}
	if len(job.Result) == 0 {
		t.Error("completed job should carry a result payload")
	}
	if job.CompletedAt == nil {
		t.Error("completed job should have completedAt")
	}
}

func TestExecuteProgressNeverDecreases(t *testing.T) {
	rig := newTestRig()

	rig.importer.run = func(ctx context.Context, in adapter.ImportInput, onProgress func(adapter.ImportProgress)) (adapter.ArtifactRef, error) {
		onProgress(adapter.ImportProgress{BytesDone: 800, BytesTotal: 1000})
		onProgress(adapter.ImportProgress{BytesDone: 300, BytesTotal: 1000})
		return adapter.ArtifactRef{Path: "/work/source.mp3"}, nil
	}

	jobID := rig.createJob(t, importRequest())
	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	seq := rig.broadcaster.progressSeq()
	for i := 1; i < len(seq); i++ {
		if seq[i] < seq[i-1] {
			t.Fatalf("progress went backwards: %v", seq)
		}
	}
}

func TestExecuteProcessOnlySkipsImport(t *testing.T) {
	rig := newTestRig()

	importCalled := false
	rig.importer.run = func(ctx context.Context, in adapter.ImportInput, onProgress func(adapter.ImportProgress)) (adapter.ArtifactRef, error) {
		importCalled = true
		return adapter.ArtifactRef{}, nil
	}
	var transformInput adapter.TransformInput
	rig.transformer.run = func(ctx context.Context, in adapter.TransformInput, onProgress func(adapter.TransformProgress)) (adapter.StemSet, error) {
		transformInput = in
		onProgress(adapter.TransformProgress{Segment: 5, SegmentTotal: 10, ModelIndex: 0, ModelCount: 1})
		return adapter.StemSet{model.StemVocals: {Path: "/work/vocals.wav"}}, nil
	}

	jobID := rig.createJob(t, processRequest())
	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if importCalled {
		t.Error("importer should not run for process_only jobs")
	}
	if transformInput.Artifact.Path != "/uploads/track.wav" {
		t.Errorf("transform artifact = %q", transformInput.Artifact.Path)
	}

	// Transform owns [0,90) for this kind: half of one model maps to 45.
	seq := rig.broadcaster.progressSeq()
	found := false
	for _, p := range seq {
		if p == 45 {
			found = true
		}
	}
	if !found {
		t.Errorf("progress sequence %v missing mapped sample 45", seq)
	}

	job := rig.loadJob(t, jobID)
	if job.Phase != model.JobPhaseCompleted {
		t.Errorf("phase = %s, want completed", job.Phase)
	}
}

func TestExecuteTransformFailure(t *testing.T) {
	rig := newTestRig()

	rig.transformer.run = func(ctx context.Context, in adapter.TransformInput, onProgress func(adapter.TransformProgress)) (adapter.StemSet, error) {
		return nil, adapter.NewFailure(model.ErrorCategoryPermanent, "unsupported sample rate")
	}

	jobID := rig.createJob(t, processRequest())
	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job := rig.loadJob(t, jobID)
	if job.Phase != model.JobPhaseFailed {
		t.Fatalf("phase = %s, want failed", job.Phase)
	}
	if job.Error == nil {
		t.Fatal("failed job should carry an error")
	}
	if job.Error.Category != model.ErrorCategoryPermanent {
		t.Errorf("category = %s, want permanent", job.Error.Category)
	}
	if job.Error.Detail != "unsupported sample rate" {
		t.Errorf("detail = %q", job.Error.Detail)
	}

	if len(rig.broadcaster.errors) != 1 || rig.broadcaster.errors[0] != "JOB_FAILED" {
		t.Errorf("error broadcasts = %v", rig.broadcaster.errors)
	}
	if rig.transformer.cleanups != 1 {
		t.Errorf("transformer cleanups = %d, want 1", rig.transformer.cleanups)
	}
	if rig.importer.cleanups != 0 || rig.finalizer.cleanups != 0 {
		t.Errorf("only the failing phase should clean up: import=%d finalize=%d",
			rig.importer.cleanups, rig.finalizer.cleanups)
	}
}

func TestExecuteTerminalStateExclusivity(t *testing.T) {
	rig := newTestRig()
	jobID := rig.createJob(t, processRequest())
	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job := rig.loadJob(t, jobID)
	if job.Phase != model.JobPhaseCompleted {
		t.Fatalf("phase = %s", job.Phase)
	}
	if job.Error != nil {
		t.Error("completed job should not carry an error")
	}
}

func TestCancelIdempotence(t *testing.T) {
	rig := newTestRig()
	jobID := rig.createJob(t, importRequest())

	first, err := rig.orch.Cancel(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !first {
		t.Error("first cancel should return true")
	}

	second, err := rig.orch.Cancel(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if second {
		t.Error("repeat cancel should return false")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	rig := newTestRig()

	canceled, err := rig.orch.Cancel(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if canceled {
		t.Error("cancel of unknown job should return false")
	}
}

func TestCancelBeforeExecuteFinishesCanceled(t *testing.T) {
	rig := newTestRig()
	jobID := rig.createJob(t, importRequest())

	if canceled, _ := rig.orch.Cancel(context.Background(), jobID); !canceled {
		t.Fatal("expected cancel to be accepted")
	}

	importCalled := false
	rig.importer.run = func(ctx context.Context, in adapter.ImportInput, onProgress func(adapter.ImportProgress)) (adapter.ArtifactRef, error) {
		importCalled = true
		return adapter.ArtifactRef{}, nil
	}

	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if importCalled {
		t.Error("no phase should run for a pre-canceled job")
	}
	job := rig.loadJob(t, jobID)
	if job.Phase != model.JobPhaseCanceled {
		t.Errorf("phase = %s, want canceled", job.Phase)
	}
	if !job.CancelRequested {
		t.Error("cancelRequested should stay set")
	}
}

func TestCancelDuringTransform(t *testing.T) {
	rig := newTestRig()
	jobID := rig.createJob(t, processRequest())

	started := make(chan struct{})
	rig.transformer.run = func(ctx context.Context, in adapter.TransformInput, onProgress func(adapter.TransformProgress)) (adapter.StemSet, error) {
		close(started)
		<-ctx.Done()
		return nil, adapter.ErrCanceled
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.orch.Execute(context.Background(), jobID)
	}()

	<-started
	if canceled, _ := rig.orch.Cancel(context.Background(), jobID); !canceled {
		t.Error("expected cancel to be accepted")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not finish after cancel")
	}

	job := rig.loadJob(t, jobID)
	if job.Phase != model.JobPhaseCanceled {
		t.Errorf("phase = %s, want canceled", job.Phase)
	}
	if job.Error != nil {
		t.Error("canceled job should not carry an error")
	}
	if rig.transformer.cleanups != 1 {
		t.Errorf("transformer cleanups = %d, want 1", rig.transformer.cleanups)
	}
}

// A cancel landing after the last phase already succeeded resolves to
// success: terminal states are first-writer-wins.
func TestCancelAfterSuccessResolvesToCompleted(t *testing.T) {
	rig := newTestRig()
	jobID := rig.createJob(t, processRequest())

	cancelDelivered := make(chan struct{})
	started := make(chan struct{})
	rig.transformer.run = func(ctx context.Context, in adapter.TransformInput, onProgress func(adapter.TransformProgress)) (adapter.StemSet, error) {
		close(started)
		<-cancelDelivered
		return adapter.StemSet{model.StemVocals: {Path: "/work/vocals.wav"}}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		rig.orch.Execute(context.Background(), jobID)
	}()

	<-started
	if canceled, _ := rig.orch.Cancel(context.Background(), jobID); !canceled {
		t.Error("expected cancel to be accepted")
	}
	close(cancelDelivered)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not finish")
	}

	job := rig.loadJob(t, jobID)
	if job.Phase != model.JobPhaseCompleted {
		t.Errorf("phase = %s, want completed", job.Phase)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	if !job.CancelRequested {
		t.Error("cancelRequested should remain visible on the record")
	}
}

func TestExecuteSkipsNonQueuedJobs(t *testing.T) {
	rig := newTestRig()
	jobID := rig.createJob(t, processRequest())

	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	completes := rig.broadcaster.completes

	// Second delivery of the same task is a no-op.
	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("repeat Execute failed: %v", err)
	}
	if rig.broadcaster.completes != completes {
		t.Error("repeat execution should not re-run the job")
	}
}

func TestGetResult(t *testing.T) {
	rig := newTestRig()
	jobID := rig.createJob(t, processRequest())

	if _, err := rig.orch.GetResult(context.Background(), jobID); !errors.Is(err, ErrNotCompleted) {
		t.Errorf("err = %v, want ErrNotCompleted", err)
	}

	if err := rig.orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	result, err := rig.orch.GetResult(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if result.JobID != jobID {
		t.Errorf("result jobId = %q, want %q", result.JobID, jobID)
	}
}

// gateableStore pauses one armed Get so the test can slip a write in
// between a caller's read and its follow-up store call.
type gateableStore struct {
	*store.MemoryStore
	mu      sync.Mutex
	armed   bool
	paused  chan struct{}
	release chan struct{}
}

func newGateableStore() *gateableStore {
	return &gateableStore{
		MemoryStore: store.NewMemoryStore(),
		paused:      make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gateableStore) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func (s *gateableStore) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.MemoryStore.Get(ctx, id)
	s.mu.Lock()
	armed := s.armed
	s.armed = false
	s.mu.Unlock()
	if armed {
		close(s.paused)
		<-s.release
	}
	return job, err
}

// A cancel that read the job before it completed must not write that
// stale snapshot back over the terminal record.
func TestCancelRaceWithCompletionKeepsTerminalRecord(t *testing.T) {
	gs := newGateableStore()
	broadcaster := &recorderBroadcaster{}
	orch := New(gs, broadcaster, &noopScheduler{}, &fakeImporter{}, &fakeTransformer{}, &fakeFinalizer{}, 0)

	resp, err := orch.CreateJob(context.Background(), processRequest())
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	jobID := resp.JobID

	gs.arm()
	cancelDone := make(chan struct{})
	go func() {
		defer close(cancelDone)
		orch.Cancel(context.Background(), jobID)
	}()

	// Cancel is now holding its pre-completion snapshot; run the job to
	// a terminal phase underneath it, then let Cancel finish.
	<-gs.paused
	if err := orch.Execute(context.Background(), jobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	close(gs.release)

	select {
	case <-cancelDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Cancel did not return")
	}

	job, err := gs.MemoryStore.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if job.Phase != model.JobPhaseCompleted || job.Progress != 100 {
		t.Fatalf("terminal record was rewritten: phase=%s progress=%d", job.Phase, job.Progress)
	}
	if len(job.Result) == 0 {
		t.Error("completed job lost its result payload")
	}
	if !job.CancelRequested {
		t.Error("cancel flag should still be merged onto the record")
	}
}

// flakyStore fails the first n Gets the way a brief Redis outage would.
type flakyStore struct {
	*store.MemoryStore
	failures int
}

func (s *flakyStore) Get(ctx context.Context, id string) (*model.Job, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("redis: connection refused")
	}
	return s.MemoryStore.Get(ctx, id)
}

func TestExecuteRetriesInitialLoad(t *testing.T) {
	restore := loadRetryDelay
	loadRetryDelay = time.Millisecond
	defer func() { loadRetryDelay = restore }()

	fs := &flakyStore{MemoryStore: store.NewMemoryStore(), failures: loadAttempts - 1}
	broadcaster := &recorderBroadcaster{}
	orch := New(fs, broadcaster, &noopScheduler{}, &fakeImporter{}, &fakeTransformer{}, &fakeFinalizer{}, 0)

	resp, err := orch.CreateJob(context.Background(), processRequest())
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := orch.Execute(context.Background(), resp.JobID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job, err := fs.MemoryStore.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if job.Phase != model.JobPhaseCompleted {
		t.Errorf("phase = %s, want completed", job.Phase)
	}
}

func TestExecuteMarksJobFailedWhenLoadKeepsFailing(t *testing.T) {
	restore := loadRetryDelay
	loadRetryDelay = time.Millisecond
	defer func() { loadRetryDelay = restore }()

	fs := &flakyStore{MemoryStore: store.NewMemoryStore(), failures: loadAttempts}
	broadcaster := &recorderBroadcaster{}
	orch := New(fs, broadcaster, &noopScheduler{}, &fakeImporter{}, &fakeTransformer{}, &fakeFinalizer{}, 0)

	resp, err := orch.CreateJob(context.Background(), processRequest())
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := orch.Execute(context.Background(), resp.JobID); err == nil {
		t.Fatal("expected load error from Execute")
	}

	job, err := fs.MemoryStore.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if job.Phase != model.JobPhaseFailed {
		t.Fatalf("phase = %s, want failed", job.Phase)
	}
	if job.Error == nil || job.Error.Category != model.ErrorCategoryInfrastructure {
		t.Errorf("error = %+v, want infrastructure category", job.Error)
	}
	if len(broadcaster.errors) != 1 || broadcaster.errors[0] != "JOB_FAILED" {
		t.Errorf("error broadcasts = %v", broadcaster.errors)
	}
}

func TestGetResultUnknownJob(t *testing.T) {
	rig := newTestRig()

	_, err := rig.orch.GetResult(context.Background(), "no-such-job")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
