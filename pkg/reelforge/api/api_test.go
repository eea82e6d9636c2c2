package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelforge/scheduler/pkg/reelforge/calendar"
	"github.com/reelforge/scheduler/pkg/reelforge/capability"
	"github.com/reelforge/scheduler/pkg/reelforge/content"
	"github.com/reelforge/scheduler/pkg/reelforge/executor"
	"github.com/reelforge/scheduler/pkg/reelforge/job"
	"github.com/reelforge/scheduler/pkg/reelforge/recurring"
	"github.com/reelforge/scheduler/pkg/reelforge/store"
)

type fakeScriptGenerator struct{}

func (fakeScriptGenerator) Generate(ctx context.Context, topic, style string, durationSeconds int, tags []string) (capability.Script, error) {
	return capability.Script{ID: "s1", Text: "hi"}, nil
}

type fakeVideoAssembler struct{}

func (fakeVideoAssembler) Assemble(ctx context.Context, script capability.Script, assets []capability.Asset, voice string, progress capability.ProgressFunc) (capability.VideoArtifact, error) {
	progress(100)
	return capability.VideoArtifact{Path: "/tmp/out.mp4", DurationSeconds: 90}, nil
}

type fakeYouTubeUploader struct{}

func (fakeYouTubeUploader) Upload(ctx context.Context, artifact capability.VideoArtifact, metadata capability.UploadMetadata, publishAt *time.Time, progress capability.ProgressFunc) (capability.UploadResult, error) {
	progress(100)
	return capability.UploadResult{VideoID: "v1", URL: "https://example/v1"}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.OpenSQLite(store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cal := calendar.New(calendar.Config{Location: time.UTC})
	exec := executor.New(2, nil)
	bus := job.NewBus()

	caps := content.Capabilities{
		ScriptGenerator: fakeScriptGenerator{},
		VideoAssembler:  fakeVideoAssembler{},
		YouTubeUploader: fakeYouTubeUploader{},
	}
	contentSched := content.New(st, cal, exec, bus, caps, content.Config{Location: time.UTC}, nil)
	recurringSched := recurring.New(st, contentSched, exec.Limiter(), time.UTC, nil)

	return New(Config{}, contentSched, recurringSched, cal, bus, nil)
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestScheduleJobThenListReturnsIt(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(job.Request{Topic: "cats", DurationSeconds: 90, ScheduledAt: time.Now().Add(time.Hour)})
	req := httptest.NewRequest("POST", "/api/jobs/schedule", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleScheduleJob(w, req)
	if w.Code != 201 {
		t.Fatalf("schedule status = %d body=%s", w.Code, w.Body.String())
	}

	listReq := httptest.NewRequest("GET", "/api/jobs", nil)
	listW := httptest.NewRecorder()
	s.handleListJobs(listW, listReq)
	if listW.Code != 200 {
		t.Fatalf("list status = %d", listW.Code)
	}

	var jobs []job.Job
	if err := json.Unmarshal(listW.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/statistics", nil)
	w := httptest.NewRecorder()
	s.handleStatistics(w, req)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCalendarBlackoutsCRUD(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]time.Time{"date": time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)})
	req := httptest.NewRequest("POST", "/api/calendar/blackouts", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleCalendarBlackouts(w, req)
	if w.Code != 200 {
		t.Fatalf("post blackout status = %d", w.Code)
	}

	listReq := httptest.NewRequest("GET", "/api/calendar/blackouts", nil)
	listW := httptest.NewRecorder()
	s.handleCalendarBlackouts(listW, listReq)
	var dates []time.Time
	if err := json.Unmarshal(listW.Body.Bytes(), &dates); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("expected 1 blackout date, got %d", len(dates))
	}
}
