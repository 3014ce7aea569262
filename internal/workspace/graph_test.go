package workspace

import (
	"testing"

	"github.com/jdarais/cobble/internal/cobleerr"
)

func TestBuildSimple(t *testing.T) {
	ws, err := Build([]ProjectDef{
		{
			Name: "app",
			Tasks: []*Task{
				{Name: "compile", Artifacts: []string{"out/bin"}},
				{Name: "test", Deps: Dependencies{TaskDeps: []string{"compile"}}},
			},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// compile, test, clean:compile, clean:test, project:app, clean:project:app
	if len(ws.Tasks) != 6 {
		t.Fatalf("expected 6 tasks (2 real + 4 derived), got %d: %v", len(ws.Tasks), taskNames(ws))
	}
	if owner, ok := ws.FileProvider("out/bin"); !ok || owner != "compile" {
		t.Fatalf("FileProvider(out/bin) = %q, %v, want compile, true", owner, ok)
	}

	clean, ok := ws.Tasks["clean:compile"]
	if !ok || clean.Kind != KindCleanTask {
		t.Fatalf("expected clean:compile to be materialized as a KindCleanTask, got %+v, ok=%v", clean, ok)
	}
	if len(clean.Actions) != 1 || clean.Actions[0].Kind != ActionDeleteFiles || clean.Actions[0].DeleteFiles[0] != "out/bin" {
		t.Fatalf("clean:compile actions = %+v", clean.Actions)
	}
	// test depends on compile, so cleaning compile must wait for test's
	// own clean job (invariant: never leave a dependent referencing
	// already-deleted artifacts).
	if len(clean.ExecuteAfter) != 1 || clean.ExecuteAfter[0] != "clean:test" {
		t.Fatalf("clean:compile.ExecuteAfter = %v, want [clean:test]", clean.ExecuteAfter)
	}

	proj, ok := ws.Tasks["project:app"]
	if !ok || proj.Kind != KindProject {
		t.Fatalf("expected project:app to be materialized as a KindProject, got %+v, ok=%v", proj, ok)
	}
}

func taskNames(ws *Workspace) []string {
	names := make([]string, 0, len(ws.Tasks))
	for n := range ws.Tasks {
		names = append(names, n)
	}
	return names
}

func TestBuildDuplicateTask(t *testing.T) {
	_, err := Build([]ProjectDef{
		{Name: "a", Tasks: []*Task{{Name: "x"}}},
		{Name: "b", Tasks: []*Task{{Name: "x"}}},
	})
	if err == nil {
		t.Fatal("expected duplicate task name error")
	}
	if kind, ok := cobleerr.Of(err); !ok || kind != cobleerr.Graph {
		t.Fatalf("got kind %v, ok %v, want Graph", kind, ok)
	}
}

func TestBuildSelfTaskDep(t *testing.T) {
	_, err := Build([]ProjectDef{
		{Name: "a", Tasks: []*Task{{Name: "x", Deps: Dependencies{TaskDeps: []string{"x"}}}}},
	})
	if err == nil {
		t.Fatal("expected self-dependency error")
	}
}

func TestBuildUnknownTaskDep(t *testing.T) {
	_, err := Build([]ProjectDef{
		{Name: "a", Tasks: []*Task{{Name: "x", Deps: Dependencies{TaskDeps: []string{"missing"}}}}},
	})
	if err == nil {
		t.Fatal("expected lookup error")
	}
	if kind, ok := cobleerr.Of(err); !ok || kind != cobleerr.Lookup {
		t.Fatalf("got kind %v, ok %v, want Lookup", kind, ok)
	}
}

func TestBuildCalcDepMustBeCalcTask(t *testing.T) {
	_, err := Build([]ProjectDef{
		{Name: "a", Tasks: []*Task{
			{Name: "notcalc"},
			{Name: "x", Deps: Dependencies{CalcDeps: []string{"notcalc"}}},
		}},
	})
	if err == nil {
		t.Fatal("expected graph error for non-calc calc dep")
	}
}

func TestBuildFileDepProviderMismatch(t *testing.T) {
	_, err := Build([]ProjectDef{
		{Name: "a", Tasks: []*Task{
			{Name: "producer", Artifacts: []string{"out/a"}},
			{Name: "consumer", Deps: Dependencies{FileDeps: []FileDep{
				{Path: "out/b", ProvidedByTask: "producer"},
			}}},
		}},
	})
	if err == nil {
		t.Fatal("expected graph error: producer does not produce out/b")
	}
}

func TestBuildDuplicateArtifact(t *testing.T) {
	_, err := Build([]ProjectDef{
		{Name: "a", Tasks: []*Task{
			{Name: "t1", Artifacts: []string{"out/a"}},
			{Name: "t2", Artifacts: []string{"out/a"}},
		}},
	})
	if err == nil {
		t.Fatal("expected duplicate artifact error")
	}
}

func TestPseudoTaskNames(t *testing.T) {
	if got := CleanTaskName("build"); got != "clean:build" {
		t.Fatalf("CleanTaskName = %q", got)
	}
	if got := ProjectTaskName("app"); got != "project:app" {
		t.Fatalf("ProjectTaskName = %q", got)
	}
	if !IsPseudoTask("clean:build") || !IsPseudoTask("project:app") || IsPseudoTask("build") {
		t.Fatal("IsPseudoTask misclassified")
	}
}
