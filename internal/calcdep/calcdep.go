// Package calcdep resolves calculated dependencies: task inputs that
// are themselves the output of another task, expanded by running that
// producer and merging its reported deps back into the workspace
// before planning the requested operation for real.
package calcdep

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/jdarais/cobble/internal/action"
	"github.com/jdarais/cobble/internal/cobleerr"
	"github.com/jdarais/cobble/internal/console"
	execpkg "github.com/jdarais/cobble/internal/exec"
	"github.com/jdarais/cobble/internal/plan"
	"github.com/jdarais/cobble/internal/store"
	"github.com/jdarais/cobble/internal/workspace"
)

// Output is the shape a calc task's action result must serialize to:
// additional file/task dependencies and var bindings to graft onto
// every task that names it as a calc dep.
type Output struct {
	FileDeps []workspace.FileDep
	TaskDeps []string
	Vars     map[string]workspace.VarValue
}

// rawOutput is Output's wire shape: Vars arrives as plain JSON leaves
// (string/array/object), coerced into workspace.VarValue the same way
// a cobble.toml leaf is.
type rawOutput struct {
	FileDeps []workspace.FileDep `json:"file_deps"`
	TaskDeps []string            `json:"task_deps"`
	Vars     map[string]any      `json:"vars"`
}

// maxPasses bounds the fixed-point loop; exceeding it means the
// workspace's calc deps do not converge (e.g. a calc task whose own
// expansion keeps discovering a new calc dep on each pass).
const maxPasses = 25

// Resolve runs every calc task reachable from the workspace's tasks at
// most once each (see SPEC_FULL.md §4.2: an always_run calc task is
// resolved once per outer invocation, not re-run mid fixed-point), and
// merges their reported Output into the consuming tasks' Dependencies
// in place, clearing each satisfied entry out of Deps.CalcDeps as it
// is merged, repeating until every task's CalcDeps is empty or the
// pass limit is hit. A calc task that (directly or transitively, via
// its own CalcDeps) depends on itself is reported as a CycleError
// rather than looping forever.
func Resolve(ctx context.Context, ws *workspace.Workspace, host action.Host, st *store.Store, numWorkers int) error {
	const op = "calcdep.Resolve"

	ex := &execpkg.Executor{
		WS:           ws,
		Store:        st,
		Host:         host,
		Console:      console.New(discard{}),
		NumWorkers:   numWorkers,
		OutputPolicy: console.ShowNone,
	}

	cache := map[string]Output{}
	path := map[string]bool{} // calc task names on the current resolution chain

	var resolve func(name string) (Output, error)
	resolve = func(name string) (Output, error) {
		if out, ok := cache[name]; ok {
			return out, nil
		}
		if path[name] {
			return Output{}, CycleError(name)
		}
		task, ok := ws.Tasks[name]
		if !ok {
			return Output{}, fmt.Errorf("unknown calc task %q", name)
		}

		path[name] = true
		defer delete(path, name)

		for _, dep := range append([]string(nil), task.Deps.CalcDeps...) {
			out, err := resolve(dep)
			if err != nil {
				return Output{}, err
			}
			mergeInto(task, dep, out)
		}

		p, err := plan.Execute(ws, []string{name})
		if err != nil {
			return Output{}, err
		}
		res, err := ex.Run(ctx, p)
		if err != nil {
			return Output{}, err
		}
		if res.HasFailures() {
			return Output{}, fmt.Errorf("resolving calc task %q: %v", name, res.Errs)
		}
		rec, err := st.Get(ctx, name)
		if err != nil {
			return Output{}, fmt.Errorf("reading resolved output of calc task %q: %w", name, err)
		}
		out, err := decodeOutput(rec.Output.Value)
		if err != nil {
			return Output{}, fmt.Errorf("calc task %q did not return a valid dependency set: %w", name, err)
		}
		resolveRelativePaths(&out, task.ProjectDir)
		cache[name] = out
		return out, nil
	}

	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, task := range ws.Tasks {
			if task.Kind != workspace.KindTask {
				continue
			}
			for _, calcName := range append([]string(nil), task.Deps.CalcDeps...) {
				out, err := resolve(calcName)
				if err != nil {
					return cobleerr.Wrap(cobleerr.ActionFailed, op, err)
				}
				if mergeInto(task, calcName, out) {
					changed = true
				}
			}
		}
		if !changed {
			return nil
		}
	}
	return cobleerr.New(cobleerr.Graph, op, "calculated dependencies did not converge within the pass limit")
}

// CycleError reports that resolving a calc dependency revisited a
// task already on its own current resolution path.
func CycleError(name string) error {
	return cobleerr.New(cobleerr.Graph, "calcdep.Resolve", fmt.Sprintf("cycle detected resolving calc dependency %q", name))
}

func decodeOutput(value workspace.ScriptValue) (Output, error) {
	if len(value) == 0 {
		return Output{}, nil
	}
	var raw rawOutput
	if err := json.Unmarshal(value, &raw); err != nil {
		return Output{}, err
	}
	out := Output{FileDeps: raw.FileDeps, TaskDeps: raw.TaskDeps}
	if len(raw.Vars) > 0 {
		out.Vars = make(map[string]workspace.VarValue, len(raw.Vars))
		for k, v := range raw.Vars {
			vv, err := workspace.VarValueFromTOML(v)
			if err != nil {
				return Output{}, fmt.Errorf("var %q: %w", k, err)
			}
			out.Vars[k] = vv
		}
	}
	return out, nil
}

// resolveRelativePaths joins every relative FileDep path onto
// projectDir, so a calc task can report paths relative to its own
// project without the consuming task needing to know that project's
// location.
func resolveRelativePaths(out *Output, projectDir string) {
	if projectDir == "" {
		return
	}
	for i, fd := range out.FileDeps {
		if fd.ProvidedByTask == "" && !filepath.IsAbs(fd.Path) {
			out.FileDeps[i].Path = filepath.Join(projectDir, fd.Path)
		}
	}
}

// mergeInto grafts out onto task's Dependencies and Vars, then clears
// calcName out of task.Deps.CalcDeps — the calc dep is now fully
// resolved into concrete file/task deps and can never reappear as a
// planning-time obligation. Reports whether task changed in any way.
func mergeInto(task *workspace.Task, calcName string, out Output) bool {
	changed := false
	for _, fd := range out.FileDeps {
		if !hasFileDep(task.Deps.FileDeps, fd) {
			task.Deps.FileDeps = append(task.Deps.FileDeps, fd)
			changed = true
		}
	}
	for _, td := range out.TaskDeps {
		if !hasString(task.Deps.TaskDeps, td) {
			task.Deps.TaskDeps = append(task.Deps.TaskDeps, td)
			changed = true
		}
	}
	for name, v := range out.Vars {
		if task.Vars == nil {
			task.Vars = map[string]workspace.VarValue{}
		}
		task.Vars[name] = v
		changed = true
	}
	if removeString(&task.Deps.CalcDeps, calcName) {
		changed = true
	}
	return changed
}

func hasFileDep(deps []workspace.FileDep, fd workspace.FileDep) bool {
	for _, d := range deps {
		if d.Path == fd.Path && d.ProvidedByTask == fd.ProvidedByTask {
			return true
		}
	}
	return false
}

func hasString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// removeString deletes the first occurrence of v from *values,
// reporting whether it was present.
func removeString(values *[]string, v string) bool {
	for i, x := range *values {
		if x == v {
			*values = append((*values)[:i], (*values)[i+1:]...)
			return true
		}
	}
	return false
}

// discard is an io.Writer that drops everything written to it, used
// so calc-task resolution runs silently against its own throwaway
// console rather than interleaving with the real operation's output.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
