package status

import (
	"bytes"
	"context"
	"net"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/Cloudconvert/internal/adapter/local"
	"github.com/Ning0612/Cloudconvert/internal/core/policy"
	"github.com/Ning0612/Cloudconvert/internal/job"
	"github.com/Ning0612/Cloudconvert/internal/pipeline"
	"github.com/Ning0612/Cloudconvert/internal/remote"
	"github.com/Ning0612/Cloudconvert/internal/testutil"
)

// blockingTranscoder holds every conversion until release is closed
type blockingTranscoder struct {
	fs      afero.Fs
	started chan string
	release chan struct{}
}

func (b *blockingTranscoder) Name() string { return "blocking" }

func (b *blockingTranscoder) Transcode(ctx context.Context, input, output string) error {
	b.started <- path.Base(input)
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	data, err := afero.ReadFile(b.fs, input)
	if err != nil {
		return err
	}
	return afero.WriteFile(b.fs, output, data, 0644)
}

func startServer(t *testing.T, src Source) (string, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(src)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	return ln.Addr().String(), func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve() did not return after cancel")
		}
	}
}

func fetch(t *testing.T, addr string) *Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := Fetch(ctx, addr)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	return snap
}

func TestServer_ReportsRunningThenQueued(t *testing.T) {
	fs := afero.NewMemMapFs()
	fs.MkdirAll("/tmp/cc", 0755)
	for _, name := range []string{"a.avi", "b.mkv", "c.mov"} {
		testutil.WriteFile(t, fs, path.Join("/remote/Videos", name), []byte(name))
	}

	backend, err := local.New(fs, "/remote")
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	tc := &blockingTranscoder{fs: fs, started: make(chan string, 3), release: make(chan struct{})}
	env := &job.Env{Backend: backend, Transcoder: tc, Fs: fs, TempDir: "/tmp/cc", TargetExt: ".mp4"}

	p := pipeline.New(env, pipeline.Options{Workers: 1}, nil)
	disc := &pipeline.Discoverer{Tree: remote.NewTree(backend), Policy: policy.Default(), Drive: "Drive"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(context.Background(), disc.Discover); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()

	addr, stop := startServer(t, p)
	defer stop()

	<-tc.started
	testutil.AssertEventually(t, 2*time.Second, func() bool { return len(p.Snapshot()) == 3 })

	snap := fetch(t, addr)
	if len(snap.Jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(snap.Jobs))
	}

	want := []string{"Drive:Videos/a.avi", "Drive:Videos/b.mkv", "Drive:Videos/c.mov"}
	for i, j := range snap.Jobs {
		if j.Source != want[i] {
			t.Errorf("jobs[%d].Source = %s, want %s", i, j.Source, want[i])
		}
		if j.Running != (i == 0) {
			t.Errorf("jobs[%d].Running = %v", i, j.Running)
		}
	}
	if snap.Jobs[0].Stage != "downloaded" {
		t.Errorf("running stage = %s, want downloaded", snap.Jobs[0].Stage)
	}
	if snap.Jobs[1].Stage != "created" {
		t.Errorf("queued stage = %s, want created", snap.Jobs[1].Stage)
	}
	if snap.GeneratedAt.IsZero() {
		t.Error("generated_at not set")
	}
	if n := len(snap.Running()); n != 1 {
		t.Errorf("Running() = %d jobs, want 1", n)
	}

	close(tc.release)
	wg.Wait()

	if after := fetch(t, addr); len(after.Jobs) != 0 {
		t.Errorf("after drain got %d jobs", len(after.Jobs))
	}
}

func TestServer_OneDocumentPerConnection(t *testing.T) {
	src := SourceFunc(func() []job.Summary {
		return []job.Summary{{ID: "1", Source: "Drive:x.avi", Stage: "created"}}
	})
	addr, stop := startServer(t, src)
	defer stop()

	for i := 0; i < 3; i++ {
		snap := fetch(t, addr)
		if len(snap.Jobs) != 1 || snap.Jobs[0].Source != "Drive:x.avi" {
			t.Errorf("fetch %d: jobs = %+v", i, snap.Jobs)
		}
	}
}

func TestServer_EmptySourceEncodesEmptyList(t *testing.T) {
	addr, stop := startServer(t, SourceFunc(func() []job.Summary { return nil }))
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var buf bytes.Buffer
	buf.ReadFrom(conn)
	if !strings.Contains(buf.String(), `"jobs":[]`) {
		t.Errorf("payload = %s", buf.String())
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Fetch(context.Background(), addr); err == nil {
		t.Error("expected error for closed port")
	}
}

func TestRender(t *testing.T) {
	snap := &Snapshot{
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Jobs: []job.Summary{
			{Source: "Drive:a.avi", Stage: "converted", Size: 2048, Running: true},
			{Source: "Drive:b.avi", Stage: "created", Size: 10, Error: "boom"},
		},
	}

	var buf bytes.Buffer
	Render(&buf, snap, nil)
	out := buf.String()

	for _, want := range []string{"1 running, 1 waiting", "Drive:a.avi", "2.0 KB", "Drive:b.avi", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Drive:a.avi") > strings.Index(out, "Drive:b.avi") {
		t.Error("running job should be listed first")
	}

	buf.Reset()
	Render(&buf, &Snapshot{}, nil)
	if !strings.Contains(buf.String(), "nothing to do") {
		t.Errorf("empty output = %q", buf.String())
	}
}
