package exec

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jdarais/cobble/internal/action"
	"github.com/jdarais/cobble/internal/console"
	"github.com/jdarais/cobble/internal/plan"
	"github.com/jdarais/cobble/internal/store"
	"github.com/jdarais/cobble/internal/workspace"
)

func newTestExecutor(t *testing.T) (*Executor, *workspace.Workspace, string) {
	t.Helper()
	dir := t.TempDir()
	artifact := filepath.Join(dir, "out.txt")

	ws, err := workspace.Build([]workspace.ProjectDef{
		{
			Name: "app",
			Tasks: []*workspace.Task{
				{
					Name: "build",
					Actions: []workspace.Action{{
						Kind: workspace.ActionCmd,
						Cmd:  &workspace.CmdAction{Program: "sh", Args: []string{"-c", "echo built > " + artifact}},
					}},
					Artifacts: []string{artifact},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	st, err := store.Open(context.Background(), filepath.Join(dir, "test.cobble.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	var buf bytes.Buffer
	e := &Executor{
		WS:           ws,
		Store:        st,
		Host:         action.NewProcessHost(),
		Console:      console.New(&buf),
		NumWorkers:   2,
		OutputPolicy: console.ShowOnFail,
	}
	return e, ws, artifact
}

func TestRunTaskExecutesThenSkipsWhenUpToDate(t *testing.T) {
	e, ws, artifact := newTestExecutor(t)
	ctx := context.Background()

	p, err := plan.Execute(ws, []string{"build"})
	if err != nil {
		t.Fatalf("plan.Execute: %v", err)
	}

	res, err := e.Run(ctx, p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HasFailures() {
		t.Fatalf("unexpected failures: %v", res.Errs)
	}
	if res.Statuses["build"] != console.Success {
		t.Fatalf("first run status = %v, want Success", res.Statuses["build"])
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("artifact not created: %v", err)
	}

	res2, err := e.Run(ctx, p)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res2.Statuses["build"] != console.UpToDate {
		t.Fatalf("second run status = %v, want UpToDate", res2.Statuses["build"])
	}
}

func TestCleanRemovesArtifactAndRecord(t *testing.T) {
	e, ws, artifact := newTestExecutor(t)
	ctx := context.Background()

	p, _ := plan.Execute(ws, []string{"build"})
	if _, err := e.Run(ctx, p); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cp, err := plan.Clean(ws, []string{"build"})
	if err != nil {
		t.Fatalf("plan.Clean: %v", err)
	}
	res, err := e.Run(ctx, cp)
	if err != nil {
		t.Fatalf("clean Run: %v", err)
	}
	if res.HasFailures() {
		t.Fatalf("unexpected clean failures: %v", res.Errs)
	}
	if _, err := os.Stat(artifact); !os.IsNotExist(err) {
		t.Fatalf("expected artifact removed, stat err = %v", err)
	}
	if _, err := e.Store.Get(ctx, "build"); err != store.ErrNotFound {
		t.Fatalf("expected record removed, got %v", err)
	}
}

func TestRunTaskRerunsWhenArtifactChangedOutOfBand(t *testing.T) {
	e, ws, artifact := newTestExecutor(t)
	ctx := context.Background()

	p, err := plan.Execute(ws, []string{"build"})
	if err != nil {
		t.Fatalf("plan.Execute: %v", err)
	}
	if _, err := e.Run(ctx, p); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Simulate something other than cobble clobbering the artifact
	// without touching any of the task's recorded inputs.
	if err := os.WriteFile(artifact, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res, err := e.Run(ctx, p)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Statuses["build"] != console.Success {
		t.Fatalf("status after artifact tampering = %v, want Success (input hash alone is not enough)", res.Statuses["build"])
	}
}

func TestFetchTaskOutputsPropagatesDependencyRecords(t *testing.T) {
	dir := t.TempDir()
	ws, err := workspace.Build([]workspace.ProjectDef{
		{
			Name: "app",
			Tasks: []*workspace.Task{
				{Name: "producer"},
				{Name: "consumer", Deps: workspace.Dependencies{TaskDeps: []string{"producer"}}},
			},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	st, err := store.Open(context.Background(), filepath.Join(dir, "test.cobble.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	if err := st.Put(ctx, "producer", &workspace.TaskRecord{
		InputHash: "h",
		Output:    workspace.TaskOutput{Value: workspace.ScriptValue(`{"exit_code":0}`)},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	e := &Executor{WS: ws, Store: st}
	out := e.fetchTaskOutputs(ctx, ws.Tasks["consumer"])
	if string(out["producer"]) != `{"exit_code":0}` {
		t.Fatalf("fetchTaskOutputs[producer] = %q", out["producer"])
	}
}

func TestFailingTaskCancelsDependents(t *testing.T) {
	dir := t.TempDir()
	ws, err := workspace.Build([]workspace.ProjectDef{
		{
			Name: "app",
			Tasks: []*workspace.Task{
				{Name: "fails", Actions: []workspace.Action{{
					Kind: workspace.ActionCmd,
					Cmd:  &workspace.CmdAction{Program: "sh", Args: []string{"-c", "exit 1"}},
				}}},
				{Name: "downstream", Deps: workspace.Dependencies{TaskDeps: []string{"fails"}}},
			},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	st, err := store.Open(context.Background(), filepath.Join(dir, "test.cobble.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	var buf bytes.Buffer
	e := &Executor{WS: ws, Store: st, Host: action.NewProcessHost(), Console: console.New(&buf), NumWorkers: 2, OutputPolicy: console.ShowOnFail}

	p, err := plan.Execute(ws, []string{"downstream"})
	if err != nil {
		t.Fatalf("plan.Execute: %v", err)
	}
	res, err := e.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Statuses["fails"] != console.Failed {
		t.Fatalf("fails status = %v, want Failed", res.Statuses["fails"])
	}
	if res.Statuses["downstream"] != console.Skipped {
		t.Fatalf("downstream status = %v, want Skipped", res.Statuses["downstream"])
	}
}
