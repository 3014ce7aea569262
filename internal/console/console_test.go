package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestStartFinishSuccess(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf)
	m.Start("compile")
	m.Finish("compile", Success, nil, ShowNone)

	out := buf.String()
	if !strings.Contains(out, "compile") || !strings.Contains(out, "succeeded") {
		t.Fatalf("output = %q", out)
	}
}

func TestFinishUnknownJobIsNoop(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf)
	m.Finish("nope", Success, nil, ShowAlways)
	if buf.Len() != 0 {
		t.Fatalf("expected no output for unknown job, got %q", buf.String())
	}
}

func TestShowOnFailFlushesOnlyOnFailure(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf)

	m.Start("a")
	m.Stdout("a", "building...")
	m.Finish("a", Success, nil, ShowOnFail)
	if strings.Contains(buf.String(), "building...") {
		t.Fatal("success output should not be flushed under ShowOnFail")
	}

	buf.Reset()
	m.Start("b")
	m.Stderr("b", "oops")
	m.Finish("b", Failed, nil, ShowOnFail)
	if !strings.Contains(buf.String(), "oops") {
		t.Fatal("failure output should be flushed under ShowOnFail")
	}
}

func TestStdinExclusiveAcquireRelease(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf)

	ctx := context.Background()
	if _, err := m.AcquireStdin(ctx, "a"); err != nil {
		t.Fatalf("AcquireStdin(a): %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if _, err := m.AcquireStdin(context.Background(), "b"); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("b should not acquire stdin while a holds it")
	case <-time.After(50 * time.Millisecond):
	}

	m.ReleaseStdin("a")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("b never acquired stdin after a released it")
	}
}

func TestActiveJobWritesThrough(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf)

	m.Start("a")
	m.Start("b")
	m.UpdateActive("a")

	m.Stdout("a", "live line")
	if !strings.Contains(buf.String(), "live line") {
		t.Fatal("active job's output should write straight through, not buffer")
	}

	phase, ok := m.JobPhase("a")
	if !ok || phase != PhaseInProgress {
		t.Fatalf("JobPhase(a) = %v, %v, want PhaseInProgress, true", phase, ok)
	}

	// b is not active, so its output is buffered and must not appear
	// until Finish flushes it.
	buf.Reset()
	m.Stdout("b", "buffered line")
	if strings.Contains(buf.String(), "buffered line") {
		t.Fatal("inactive job's output should not write through")
	}
	m.Finish("b", Success, nil, ShowAlways)
	if !strings.Contains(buf.String(), "buffered line") {
		t.Fatal("Finish(ShowAlways) should flush b's buffered output")
	}
}

func TestUpdateActiveFlushesBufferedLinesOnHandoff(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf)

	m.Start("a")
	m.Stdout("a", "before handoff")
	if strings.Contains(buf.String(), "before handoff") {
		t.Fatal("line buffered before a became active should not appear yet")
	}

	m.UpdateActive("a")
	if !strings.Contains(buf.String(), "before handoff") {
		t.Fatal("UpdateActive should flush lines already buffered for the new active job")
	}
}

func TestStatusReporting(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf)
	if _, ok := m.Status("x"); ok {
		t.Fatal("expected unknown status before Start")
	}
	m.Start("x")
	if st, ok := m.Status("x"); !ok || st != Running {
		t.Fatalf("Status = %v, %v, want Running, true", st, ok)
	}
}
