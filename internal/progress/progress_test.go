package progress

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func collect() (*CallbackReporter, func() []Update) {
	var mu sync.Mutex
	var updates []Update

	r := NewCallbackReporter(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})
	return r, func() []Update {
		mu.Lock()
		defer mu.Unlock()
		return append([]Update(nil), updates...)
	}
}

func TestCallbackReporter_Lifecycle(t *testing.T) {
	r, updates := collect()

	r.Enqueued("j1", "Drive:a.avi", 100)
	r.Enqueued("j2", "Drive:b.avi", 50)
	r.Start("j1", "Drive:a.avi")
	r.Stage("j1", "Drive:a.avi", "downloaded")
	r.Complete("j1", "Drive:a.avi")
	r.Start("j2", "Drive:b.avi")
	r.Error("j2", "Drive:b.avi", errors.New("convert failed"))

	got := updates()
	if len(got) != 7 {
		t.Fatalf("expected 7 updates, got %d", len(got))
	}

	if got[1].JobsQueued != 2 || got[1].BytesQueued != 150 {
		t.Errorf("after enqueue: %+v", got[1])
	}
	if got[3].Type != UpdateStage || got[3].Stage != "downloaded" {
		t.Errorf("stage update = %+v", got[3])
	}
	if c := got[4]; c.Type != UpdateComplete || c.JobsCompleted != 1 || c.BytesCompleted != 100 || c.Size != 100 {
		t.Errorf("complete update = %+v", c)
	}
	if e := got[6]; e.Type != UpdateError || e.JobsFailed != 1 || e.Error == nil {
		t.Errorf("error update = %+v", e)
	}
}

func TestCallbackReporter_Concurrent(t *testing.T) {
	r, updates := collect()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", idx)
			r.Enqueued(id, id, 10)
			r.Start(id, id)
			r.Stage(id, id, "converted")
			r.Complete(id, id)
		}(i)
	}
	wg.Wait()

	got := updates()
	if len(got) != 32 {
		t.Fatalf("expected 32 updates, got %d", len(got))
	}

	var maxCompleted int
	for _, u := range got {
		if u.JobsCompleted > maxCompleted {
			maxCompleted = u.JobsCompleted
		}
	}
	if maxCompleted != 8 {
		t.Errorf("JobsCompleted reached %d, want 8", maxCompleted)
	}
}

// callbacks may call back into the reporter
func TestCallbackReporter_ReentrantCallback(t *testing.T) {
	done := make(chan bool, 1)

	var reporter *CallbackReporter
	reporter = NewCallbackReporter(func(u Update) {
		if u.Type == UpdateStart {
			reporter.Stage(u.JobID, u.Source, "downloaded")
		}
	})

	go func() {
		reporter.Enqueued("j", "src", 1)
		reporter.Start("j", "src")
		reporter.Complete("j", "src")
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock detected - callback was called while holding lock")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{1536 * 1024 * 1024, "1.5 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0 TB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.bytes, got, tt.expected)
		}
	}
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		current  int64
		total    int64
		width    int
		contains string
	}{
		{0, 100, 20, "[>"},
		{50, 100, 20, "50.0%"},
		{100, 100, 20, "100.0%"},
		{0, 0, 20, ""},
	}

	for _, tt := range tests {
		got := FormatProgress(tt.current, tt.total, tt.width)
		if tt.contains == "" && got != "" {
			t.Errorf("FormatProgress(%d, %d, %d) = %q, want empty", tt.current, tt.total, tt.width, got)
		}
		if !strings.Contains(got, tt.contains) {
			t.Errorf("FormatProgress(%d, %d, %d) = %s, should contain '%s'",
				tt.current, tt.total, tt.width, got, tt.contains)
		}
	}
}

func TestNullReporter(t *testing.T) {
	var nr Reporter = NullReporter{}

	nr.Enqueued("j", "src", 1)
	nr.Start("j", "src")
	nr.Stage("j", "src", "converted")
	nr.Complete("j", "src")
	nr.Error("j", "src", errors.New("x"))
}
