package content

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/capability"
	"github.com/reelforge/scheduler/pkg/reelforge/executor"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/store"
)

type fakeScriptGen struct {
	script capability.Script
	err    error
}

func (f *fakeScriptGen) Generate(ctx context.Context, topic, style string, durationSeconds int, tags []string) (capability.Script, error) {
	if f.err != nil {
		return capability.Script{}, f.err
	}
	return f.script, nil
}

type fakeAssembler struct {
	artifact capability.VideoArtifact
	err      error
	// blockUntilCtxDone makes Assemble wait for ctx cancellation instead
	// of returning immediately, to exercise cancel-during-assemble (S4).
	blockUntilCtxDone bool
}

func (f *fakeAssembler) Assemble(ctx context.Context, script capability.Script, assets []capability.Asset, voice string, progress capability.ProgressFunc) (capability.VideoArtifact, error) {
	if f.blockUntilCtxDone {
		<-ctx.Done()
		return capability.VideoArtifact{}, ctx.Err()
	}
	if f.err != nil {
		return capability.VideoArtifact{}, f.err
	}
	progress(100)
	return f.artifact, nil
}

type fakeUploader struct {
	result capability.UploadResult
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, artifact capability.VideoArtifact, metadata capability.UploadMetadata, publishAt *time.Time, progress capability.ProgressFunc) (capability.UploadResult, error) {
	if f.err != nil {
		return capability.UploadResult{}, f.err
	}
	progress(100)
	return f.result, nil
}

func newTestScheduler(t *testing.T, caps Capabilities) (*Scheduler, store.JobStore) {
	t.Helper()
	st, err := store.OpenSQLite(store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cal := calendar.New(calendar.Config{Location: time.UTC})
	exec := executor.New(2, nil)
	bus := job.NewBus()

	sched := New(st, cal, exec, bus, caps, Config{Location: time.UTC}, nil)
	return sched, st
}

func happyCaps() Capabilities {
	return Capabilities{
		ScriptGenerator: &fakeScriptGen{script: capability.Script{ID: "s1", Text: "hello"}},
		VideoAssembler:  &fakeAssembler{artifact: capability.VideoArtifact{Path: "/tmp/out.mp4", DurationSeconds: 90}},
		YouTubeUploader: &fakeUploader{result: capability.UploadResult{VideoID: "v1", URL: "https://example/v1"}},
	}
}

// S1: happy path end to end.
func TestHappyPathCompletesJob(t *testing.T) {
	sched, _ := newTestScheduler(t, happyCaps())
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	id, err := sched.ScheduleWithContext(ctx, job.Request{Topic: "cats", DurationSeconds: 90, ScheduledAt: future})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	sched.runPipeline(ctx, id)

	got, err := sched.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed (err=%s)", got.Status, got.ErrorMessage)
	}
	if got.Result.RemoteID != "v1" {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.ProgressPercent != 100 {
		t.Fatalf("progress = %d, want 100", got.ProgressPercent)
	}
}

// S2: scheduling a second job whose window overlaps an existing
// reservation is rejected as a conflict, not silently accepted.
func TestOverlappingScheduleIsConflict(t *testing.T) {
	sched, _ := newTestScheduler(t, happyCaps())
	ctx := context.Background()

	start := time.Now().Add(2 * time.Hour)
	if _, err := sched.ScheduleWithContext(ctx, job.Request{Topic: "a", DurationSeconds: 600, ScheduledAt: start}); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}

	_, err := sched.ScheduleWithContext(ctx, job.Request{Topic: "b", DurationSeconds: 600, ScheduledAt: start.Add(time.Minute)})
	if !errors.Is(err, job.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// S4: cancelling a job while it is blocked in the assemble stage must
// cooperatively stop the operation and leave the job CANCELLED, not
// COMPLETED or FAILED.
func TestCancelDuringAssembleStopsJob(t *testing.T) {
	caps := happyCaps()
	caps.VideoAssembler = &fakeAssembler{blockUntilCtxDone: true}
	sched, _ := newTestScheduler(t, caps)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	id, err := sched.ScheduleWithContext(ctx, job.Request{Topic: "cats", DurationSeconds: 90, ScheduledAt: future})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	done := make(chan struct{})
	go func() {
		sched.runPipeline(ctx, id)
		close(done)
	}()

	// Give the pipeline time to reach the blocked assemble stage, then
	// cancel it.
	deadline := time.After(time.Second)
	for {
		j, _ := sched.Get(ctx, id)
		if j.Stage == job.StageAssemble {
			break
		}
		select {
		case <-deadline:
			t.Fatal("pipeline never reached assemble stage")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := sched.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not exit after cancel")
	}

	got, err := sched.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != job.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestStatisticsCountsByStatus(t *testing.T) {
	sched, _ := newTestScheduler(t, happyCaps())
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	if _, err := sched.ScheduleWithContext(ctx, job.Request{Topic: "a", DurationSeconds: 90, ScheduledAt: future}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	stats, err := sched.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalJobs != 1 {
		t.Fatalf("TotalJobs = %d, want 1", stats.TotalJobs)
	}
	if stats.ByStatus["scheduled"] != 1 {
		t.Fatalf("ByStatus = %+v", stats.ByStatus)
	}
}

func TestPauseThenResumeTogglesPaused(t *testing.T) {
	sched, _ := newTestScheduler(t, happyCaps())
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	id, err := sched.ScheduleWithContext(ctx, job.Request{Topic: "a", DurationSeconds: 90, ScheduledAt: future})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := sched.Pause(ctx, id); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	got, _ := sched.Get(ctx, id)
	if !got.Paused {
		t.Fatal("expected job to be paused")
	}

	if err := sched.Resume(ctx, id); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	got, _ = sched.Get(ctx, id)
	if got.Paused {
		t.Fatal("expected job to be resumed")
	}
}
