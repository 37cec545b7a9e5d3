package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/reeveops/reeve/pkg/report"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(runID string, startedAt time.Time) *report.RunReport {
	rec := report.NewRecorder()
	rec.Append(report.Result{
		ID: runID + "-r1", Host: "web1", Play: "web", Task: "install nginx",
		Module: "apt", Position: 0, Status: report.StatusChanged,
		Message: "install nginx", StartedAt: startedAt, Duration: 3 * time.Second,
	})
	rec.Append(report.Result{
		ID: runID + "-r2", Host: "web1", Play: "web", Task: "start nginx",
		Module: "service", Position: 1, Status: report.StatusUnchanged,
		StartedAt: startedAt, Duration: time.Second,
	})
	rec.Append(report.Result{
		ID: runID + "-r3", Host: "web2", Play: "web", Task: "install nginx",
		Module: "apt", Position: 0, Status: report.StatusFailed,
		Message: "apt-get exited 100", StartedAt: startedAt, Duration: 2 * time.Second,
	})
	return report.Build(runID, "site.yml", false, startedAt, rec)
}

func TestRecordAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rep := sampleReport("run-1", time.Now().Add(-time.Minute))
	if err := s.RecordRun(ctx, rep); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	run, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Playbook != "site.yml" {
		t.Errorf("playbook = %q, want site.yml", run.Playbook)
	}
	if run.Status != "failed" {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if run.Changed != 1 || run.Unchanged != 1 || run.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", run.Changed, run.Unchanged, run.Failed)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRun(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		rep := sampleReport(id, base.Add(time.Duration(i)*time.Minute))
		if err := s.RecordRun(ctx, rep); err != nil {
			t.Fatalf("RecordRun(%s): %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[0].ID != "run-c" || runs[2].ID != "run-a" {
		t.Errorf("order = [%s %s %s], want newest first", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	limited, err := s.ListRuns(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListRuns paged: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "run-b" {
		t.Errorf("paged result = %v, want [run-b]", limited)
	}
}

func TestListResultsOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordRun(ctx, sampleReport("run-1", time.Now())); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	results, err := s.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	// Ordered by host, then declaration order.
	if results[0].Host != "web1" || results[0].Task != "install nginx" {
		t.Errorf("first result = %s/%s", results[0].Host, results[0].Task)
	}
	if results[1].Task != "start nginx" {
		t.Errorf("second result task = %s, want start nginx", results[1].Task)
	}
	if results[2].Host != "web2" {
		t.Errorf("third result host = %s, want web2", results[2].Host)
	}
	if results[2].Message != "apt-get exited 100" {
		t.Errorf("failed message = %q", results[2].Message)
	}
}

func TestListResultsOrderedAcrossPlays(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	startedAt := time.Now()
	rec := report.NewRecorder()
	// Later play recorded before the earlier one finishes; task positions
	// restart at 0 per play.
	rec.Append(report.Result{
		ID: "r-web-0", Host: "web1", Play: "web", PlayPosition: 1, Task: "copy page",
		Module: "copy", Position: 0, Status: report.StatusChanged, StartedAt: startedAt,
	})
	rec.Append(report.Result{
		ID: "r-base-0", Host: "web1", Play: "base", PlayPosition: 0, Task: "install nginx",
		Module: "apt", Position: 0, Status: report.StatusChanged, StartedAt: startedAt,
	})
	rec.Append(report.Result{
		ID: "r-base-1", Host: "web1", Play: "base", PlayPosition: 0, Task: "start nginx",
		Module: "service", Position: 1, Status: report.StatusUnchanged, StartedAt: startedAt,
	})
	rep := report.Build("run-multi", "site.yml", false, startedAt, rec)
	if err := s.RecordRun(ctx, rep); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	results, err := s.ListResults(ctx, "run-multi")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	want := []string{"install nginx", "start nginx", "copy page"}
	if len(results) != len(want) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(want))
	}
	for i, task := range want {
		if results[i].Task != task {
			t.Errorf("results[%d] = %s/%s, want task %q", i, results[i].Play, results[i].Task, task)
		}
	}
}

func TestPruneCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := s.RecordRun(ctx, sampleReport("run-old", old)); err != nil {
		t.Fatalf("RecordRun old: %v", err)
	}
	if err := s.RecordRun(ctx, sampleReport("run-new", time.Now())); err != nil {
		t.Fatalf("RecordRun new: %v", err)
	}

	pruned, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	if _, err := s.GetRun(ctx, "run-old"); err == nil {
		t.Error("pruned run still present")
	}
	results, err := s.ListResults(ctx, "run-old")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("orphaned results = %d, want 0", len(results))
	}

	if _, err := s.GetRun(ctx, "run-new"); err != nil {
		t.Errorf("recent run missing after prune: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.RecordRun(ctx, sampleReport("run-1", time.Now())); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen runs migrations again; ErrNoChange must be tolerated.
	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetRun(ctx, "run-1"); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}
}
