package report

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRecorderConcurrentAppend(t *testing.T) {
	rec := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rec.Append(Result{Host: "h", Task: "t", Position: n, Status: StatusChanged})
		}(i)
	}
	wg.Wait()

	if got := len(rec.Snapshot()); got != 50 {
		t.Errorf("Snapshot() = %d results, want 50", got)
	}
}

func TestBuildOrdersAndCounts(t *testing.T) {
	rec := NewRecorder()
	// Interleaved append order across hosts, tasks out of order for host-a.
	rec.Append(Result{Host: "host-a", Task: "start service", Position: 1, Status: StatusChanged})
	rec.Append(Result{Host: "host-b", Task: "install", Position: 0, Status: StatusUnchanged})
	rec.Append(Result{Host: "host-a", Task: "install", Position: 0, Status: StatusChanged})
	rec.Append(Result{Host: "host-b", Task: "start service", Position: 1, Status: StatusFailed})
	rec.Append(Result{Host: "host-b", Task: "copy page", Position: 2, Status: StatusSkippedFailure})

	report := Build("run-1", "site.yml", false, time.Now(), rec)

	// Per-host ordering follows task declaration order regardless of
	// recording order.
	hostA := report.Hosts["host-a"]
	if hostA[0].Task != "install" || hostA[1].Task != "start service" {
		t.Errorf("host-a order = [%s, %s], want declaration order", hostA[0].Task, hostA[1].Task)
	}

	want := Summary{Changed: 2, Unchanged: 1, Failed: 1, Skipped: 1}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}

	if !report.Failed() {
		t.Error("Failed() = false, want true")
	}
	if !report.HostFailed("host-b") || report.HostFailed("host-a") {
		t.Error("HostFailed() misclassified hosts")
	}
}

func TestBuildOrdersAcrossPlays(t *testing.T) {
	rec := NewRecorder()
	// Task positions restart at 0 in every play; recording order interleaves
	// the plays.
	rec.Append(Result{Host: "h1", Play: "base", PlayPosition: 0, Task: "install", Position: 0, Status: StatusChanged})
	rec.Append(Result{Host: "h1", Play: "web", PlayPosition: 1, Task: "copy page", Position: 0, Status: StatusChanged})
	rec.Append(Result{Host: "h1", Play: "base", PlayPosition: 0, Task: "start service", Position: 1, Status: StatusUnchanged})
	rec.Append(Result{Host: "h1", Play: "web", PlayPosition: 1, Task: "reload", Position: 1, Status: StatusChanged})

	report := Build("run-1", "site.yml", false, time.Now(), rec)

	want := []string{"install", "start service", "copy page", "reload"}
	results := report.Hosts["h1"]
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, task := range want {
		if results[i].Task != task {
			t.Errorf("results[%d].Task = %q, want %q (play %s)", i, results[i].Task, task, results[i].Play)
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	build := func() *RunReport {
		rec := NewRecorder()
		rec.Append(Result{Host: "server-2", Task: "install", Position: 0, Status: StatusUnchanged})
		rec.Append(Result{Host: "server-1", Task: "install", Position: 0, Status: StatusChanged, Message: "install nginx"})
		return Build("run-1", "site.yml", false, time.Unix(0, 0), rec)
	}

	first := build().Render()
	for i := 0; i < 10; i++ {
		if got := build().Render(); got != first {
			t.Fatalf("Render() not deterministic:\n%s\nvs\n%s", first, got)
		}
	}

	// Hosts render sorted by name.
	if strings.Index(first, "server-1") > strings.Index(first, "server-2") {
		t.Errorf("hosts not sorted in output:\n%s", first)
	}
	if !strings.Contains(first, "success") {
		t.Errorf("output missing run status:\n%s", first)
	}
}

func TestRenderCheckMode(t *testing.T) {
	rec := NewRecorder()
	rec.Append(Result{Host: "h", Task: "install", Position: 0, Status: StatusChanged, CheckMode: true})

	out := Build("run-1", "site.yml", true, time.Now(), rec).Render()
	if !strings.Contains(out, "changed (check)") {
		t.Errorf("check-mode change not marked:\n%s", out)
	}
}

func TestHostNamesSorted(t *testing.T) {
	rec := NewRecorder()
	for _, h := range []string{"zeta", "alpha", "mid"} {
		rec.Append(Result{Host: h, Status: StatusUnchanged})
	}

	report := Build("r", "p", false, time.Now(), rec)
	names := report.HostNames()
	if names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Errorf("HostNames() = %v, want sorted", names)
	}
}
