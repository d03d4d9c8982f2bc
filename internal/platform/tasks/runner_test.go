package tasks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunner_ExecutesTask(t *testing.T) {
	r := NewRunner(zerolog.Nop(), 0)
	var ran int64
	r.Submit("test", func(ctx context.Context) error {
		atomic.AddInt64(&ran, 1)
		return nil
	})
	r.Wait()
	if atomic.LoadInt64(&ran) != 1 {
		t.Fatal("task did not run")
	}
}

func TestRunner_FailureIsLoggedAndSwallowed(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(zerolog.New(&buf), 0)
	r.Submit("matching", func(ctx context.Context) error {
		return fmt.Errorf("candidate query failed")
	})
	r.Wait()

	out := buf.String()
	if !strings.Contains(out, "background task failed") {
		t.Errorf("failure not logged: %s", out)
	}
	if !strings.Contains(out, `"task":"matching"`) {
		t.Errorf("task name not logged: %s", out)
	}
}

func TestRunner_PanicIsContained(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(zerolog.New(&buf), 0)
	r.Submit("explode", func(ctx context.Context) error {
		panic("boom")
	})
	r.Wait()
	if !strings.Contains(buf.String(), "task panicked") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRunner_TimeoutOnContext(t *testing.T) {
	r := NewSyncRunner(zerolog.Nop())
	r.timeout = 10 * time.Millisecond
	var deadline bool
	r.Submit("slow", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	})
	if !deadline {
		t.Error("expected a deadline on the task context")
	}
}

func TestSyncRunner_RunsInline(t *testing.T) {
	r := NewSyncRunner(zerolog.Nop())
	ran := false
	r.Submit("inline", func(ctx context.Context) error {
		ran = true
		return nil
	})
	// No Wait needed: the sync runner returns only after the task completes.
	if !ran {
		t.Fatal("sync runner should execute inline")
	}
}
