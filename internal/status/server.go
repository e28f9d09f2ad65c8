// Package status serves point-in-time snapshots of the job queue over TCP.
// Each connection receives one JSON document and is then closed.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Ning0612/Cloudconvert/internal/job"
	"github.com/Ning0612/Cloudconvert/internal/logger"
)

// DefaultAddr is the listen address used when none is configured
const DefaultAddr = "0.0.0.0:8890"

// Source provides the jobs to report: running first, then queued in FIFO order
type Source interface {
	Snapshot() []job.Summary
}

// SourceFunc adapts a function to Source
type SourceFunc func() []job.Summary

// Snapshot implements Source
func (f SourceFunc) Snapshot() []job.Summary { return f() }

// Snapshot is the document written to each client
type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Jobs        []job.Summary `json:"jobs"`
}

// Running returns the jobs currently held by workers
func (s *Snapshot) Running() []job.Summary {
	var out []job.Summary
	for _, j := range s.Jobs {
		if j.Running {
			out = append(out, j)
		}
	}
	return out
}

// Server answers every connection with a snapshot of its Source
type Server struct {
	src          Source
	writeTimeout time.Duration

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a server for src
func NewServer(src Source) *Server {
	return &Server{src: src, writeTimeout: 10 * time.Second}
}

// Addr returns the listening address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe listens on addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("status server listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then waits for
// in-progress writes to finish. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log := logger.Component("status", "addr", ln.Addr().String())
	log.Info("status server listening")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info("status server stopped")
				return nil
			}
			return fmt.Errorf("status server accept: %w", err)
		}

		wg.Go(func() { s.handle(conn) })
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	// copy first; encoding never touches live pipeline state
	snap := Snapshot{GeneratedAt: time.Now().UTC(), Jobs: s.src.Snapshot()}
	if snap.Jobs == nil {
		snap.Jobs = []job.Summary{}
	}

	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := json.NewEncoder(conn).Encode(&snap); err != nil {
		logger.Get().Warn("status snapshot write failed", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	logger.Get().Debug("status snapshot served", "remote", conn.RemoteAddr().String(), "jobs", len(snap.Jobs))
}

// Fetch connects to addr and reads one snapshot
func Fetch(ctx context.Context, addr string) (*Snapshot, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to status server %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read status snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode status snapshot: %w", err)
	}
	return &snap, nil
}
