// Package plan turns a validated workspace.Workspace plus a requested
// operation into a job DAG the executor can run: one job per task (or
// pseudo-task), already ordered by dependency.
package plan

import (
	"fmt"
	"strings"

	"github.com/jdarais/cobble/internal/cobleerr"
	"github.com/jdarais/cobble/internal/workspace"
)

// Kind distinguishes the job-producing operations. RunTask covers a
// real task, a project aggregate, and a build env/tool's cacheable
// setup alike (they are all workspace.Task nodes differing only in
// Kind and Actions); Clean has its own job kind per pseudo-task family
// so the console can report "cleaning a build env" distinctly from
// "cleaning a task."
type Kind int

const (
	RunTask Kind = iota
	CleanTask
	CleanProject
	CleanBuildEnv
	CheckTool
)

func (k Kind) String() string {
	switch k {
	case RunTask:
		return "run_task"
	case CleanTask:
		return "clean_task"
	case CleanProject:
		return "clean_project"
	case CleanBuildEnv:
		return "clean_build_env"
	case CheckTool:
		return "check_tool"
	default:
		return "unknown"
	}
}

func kindOf(tk workspace.Kind) Kind {
	switch tk {
	case workspace.KindCleanTask:
		return CleanTask
	case workspace.KindCleanProject:
		return CleanProject
	case workspace.KindCleanBuildEnv:
		return CleanBuildEnv
	default:
		return RunTask
	}
}

// Job is one node of the plan: a named unit of work with the job ids
// it must wait on.
type Job struct {
	ID    string
	Kind  Kind
	Task  *workspace.Task         // set for every kind but CheckTool
	Tool  *workspace.ExternalTool // set for CheckTool
	Needs []string
	// Args carries the post "--" CLI arguments do_env_actions forwards
	// into the requested build env's setup action context. Only set
	// on the job(s) directly named by an EnvActions call.
	Args []string
}

// Plan is an ordered, cycle-free job graph: Order lists every job id
// in an order where dependencies precede dependents.
type Plan struct {
	Jobs  map[string]*Job
	Order []string
}

type builder struct {
	ws   *workspace.Workspace
	jobs map[string]*Job
}

// Execute builds the plan for running targets (task, project:, env:,
// or tool: pseudo-task names) and everything they transitively depend
// on, including build-env setup and tool-check jobs for any build env
// or tool a reached task references. Execute rejects (as a fatal
// Graph error) any reached task that still has unresolved calc deps —
// calcdep.Resolve must run and clear every task's CalcDeps before
// planning, so a non-empty CalcDeps slice here means that step was
// skipped or did not converge.
func Execute(ws *workspace.Workspace, targets []string) (*Plan, error) {
	b := &builder{ws: ws, jobs: map[string]*Job{}}
	for _, t := range targets {
		names, err := expandTarget(ws, t)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if err := b.addTaskJob(name, map[string]bool{}); err != nil {
				return nil, err
			}
		}
	}
	return b.finish()
}

// Clean builds the plan for the clean:<task>/clean:project:<name>/
// clean:env:<name>/clean:tool:<name> pseudo-jobs for targets (accepted
// as bare task, project, build-env, or tool names, or already-prefixed
// clean: names) and everything that depends on them, inverted so a
// task's dependents — and any build env/tool it uses — are cleaned in
// the order invariant I5 requires.
func Clean(ws *workspace.Workspace, targets []string) (*Plan, error) {
	b := &builder{ws: ws, jobs: map[string]*Job{}}

	var addClean func(name string, visiting map[string]bool) error
	addClean = func(name string, visiting map[string]bool) error {
		if _, ok := b.jobs[name]; ok {
			return nil
		}
		if visiting[name] {
			return cobleerr.Wrap(cobleerr.Graph, "plan.Clean", fmt.Errorf("cycle detected cleaning %q", name))
		}
		task, ok := ws.Tasks[name]
		if !ok {
			return cobleerr.Wrap(cobleerr.Lookup, "plan.Clean", fmt.Errorf("unknown clean job %q", name))
		}
		visiting[name] = true
		needs := make([]string, 0, len(task.ExecuteAfter))
		for _, dep := range task.ExecuteAfter {
			if err := addClean(dep, visiting); err != nil {
				return err
			}
			needs = append(needs, dep)
		}
		b.jobs[name] = &Job{ID: name, Kind: kindOf(task.Kind), Task: task, Needs: needs}
		visiting[name] = false
		return nil
	}

	for _, t := range targets {
		name, err := resolveCleanTarget(ws, t)
		if err != nil {
			return nil, err
		}
		if err := addClean(name, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return b.finish()
}

// resolveCleanTarget maps a bare task/project/build-env/tool name, or
// an already-prefixed clean: name, to the clean pseudo-task that
// cleans it.
func resolveCleanTarget(ws *workspace.Workspace, target string) (string, error) {
	if strings.HasPrefix(target, workspace.CleanPrefix) {
		if _, ok := ws.Tasks[target]; ok {
			return target, nil
		}
		return "", cobleerr.Wrap(cobleerr.Lookup, "plan.Clean", fmt.Errorf("unknown clean job %q", target))
	}
	if _, ok := ws.Tasks[target]; ok {
		return workspace.CleanTaskName(target), nil
	}
	if _, ok := ws.Projects[target]; ok {
		return workspace.CleanTaskName(workspace.ProjectTaskName(target)), nil
	}
	if _, ok := ws.BuildEnvs[target]; ok {
		return workspace.CleanTaskName(workspace.EnvSetupTaskName(target)), nil
	}
	if _, ok := ws.Tools[target]; ok {
		return workspace.CleanTaskName(workspace.ToolSetupTaskName(target)), nil
	}
	return "", cobleerr.Wrap(cobleerr.Lookup, "plan.Clean", fmt.Errorf("unknown task, project, build env, or tool %q", target))
}

// CheckTools builds a plan with one independent CheckTool job per
// named tool (or every tool in the workspace if names is empty).
func CheckTools(ws *workspace.Workspace, names []string) (*Plan, error) {
	b := &builder{ws: ws, jobs: map[string]*Job{}}
	if len(names) == 0 {
		for n := range ws.Tools {
			names = append(names, n)
		}
	}
	for _, n := range names {
		tool, ok := ws.Tools[n]
		if !ok {
			return nil, cobleerr.Wrap(cobleerr.Lookup, "plan.CheckTools", fmt.Errorf("unknown tool %q", n))
		}
		id := "check:" + n
		b.jobs[id] = &Job{ID: id, Kind: CheckTool, Tool: tool}
	}
	return b.finish()
}

// EnvActions builds a plan that runs the named build envs' (or, if
// names is empty, every build env's) setup as a regular, cacheable
// RunTask job — the same up-to-date check and record-store path an
// ordinary task gets, per SPEC_FULL.md §4.3. args, if non-empty, is
// attached to each produced job so do_env_actions can forward CLI
// arguments given after "--" into the setup action's context.
func EnvActions(ws *workspace.Workspace, names []string, args []string) (*Plan, error) {
	b := &builder{ws: ws, jobs: map[string]*Job{}}
	if len(names) == 0 {
		for n := range ws.BuildEnvs {
			names = append(names, n)
		}
	}
	for _, n := range names {
		if _, ok := ws.BuildEnvs[n]; !ok {
			return nil, cobleerr.Wrap(cobleerr.Lookup, "plan.EnvActions", fmt.Errorf("unknown build env %q", n))
		}
		setupName := workspace.EnvSetupTaskName(n)
		if err := b.addTaskJob(setupName, map[string]bool{}); err != nil {
			return nil, err
		}
		b.jobs[setupName].Args = args
	}
	return b.finish()
}

func expandTarget(ws *workspace.Workspace, target string) ([]string, error) {
	if names, ok := ws.Projects[target]; ok {
		return names, nil
	}
	if _, ok := ws.Tasks[target]; ok {
		return []string{target}, nil
	}
	return nil, cobleerr.Wrap(cobleerr.Lookup, "plan.expandTarget", fmt.Errorf("unknown task or project %q", target))
}

func (b *builder) addTaskJob(name string, visiting map[string]bool) error {
	if _, ok := b.jobs[name]; ok {
		return nil
	}
	if visiting[name] {
		return cobleerr.Wrap(cobleerr.Graph, "plan.Execute", fmt.Errorf("dependency cycle detected at task %q", name))
	}
	task, ok := b.ws.Tasks[name]
	if !ok {
		return cobleerr.Wrap(cobleerr.Lookup, "plan.Execute", fmt.Errorf("unknown task %q", name))
	}
	if len(task.Deps.CalcDeps) > 0 {
		return cobleerr.Wrap(cobleerr.Graph, "plan.Execute", fmt.Errorf(
			"task %q still has unresolved calc deps %v at plan time; calc-dep resolution must run first", name, task.Deps.CalcDeps))
	}
	visiting[name] = true

	var needs []string
	if task.BuildEnv != "" {
		envID := workspace.EnvSetupTaskName(task.BuildEnv)
		if err := b.addTaskJob(envID, visiting); err != nil {
			return err
		}
		needs = append(needs, envID)
	}
	if task.Tool != "" {
		toolID := "check:" + task.Tool
		if _, ok := b.jobs[toolID]; !ok {
			b.jobs[toolID] = &Job{ID: toolID, Kind: CheckTool, Tool: b.ws.Tools[task.Tool]}
		}
		needs = append(needs, toolID)
		if tool := b.ws.Tools[task.Tool]; tool != nil && tool.SetupTask != nil {
			setupID := workspace.ToolSetupTaskName(task.Tool)
			if err := b.addTaskJob(setupID, visiting); err != nil {
				return err
			}
			needs = append(needs, setupID)
		}
	}
	for _, dep := range task.Deps.TaskDeps {
		if err := b.addTaskJob(dep, visiting); err != nil {
			return err
		}
		needs = append(needs, dep)
	}
	for _, fd := range task.Deps.FileDeps {
		if fd.ProvidedByTask == "" || fd.ProvidedByTask == name {
			continue
		}
		if err := b.addTaskJob(fd.ProvidedByTask, visiting); err != nil {
			return err
		}
		needs = append(needs, fd.ProvidedByTask)
	}

	b.jobs[name] = &Job{ID: name, Kind: RunTask, Task: task, Needs: needs}
	visiting[name] = false
	return nil
}

// finish computes a dependency-respecting topological Order over the
// collected jobs. Cycles among task jobs are already rejected by
// addTaskJob/addClean during construction.
func (b *builder) finish() (*Plan, error) {
	order := make([]string, 0, len(b.jobs))
	visited := map[string]bool{}
	var visit func(id string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		job := b.jobs[id]
		for _, dep := range job.Needs {
			if err := visit(dep); err != nil {
				return err
			}
		}
		order = append(order, id)
		return nil
	}
	for id := range b.jobs {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return &Plan{Jobs: b.jobs, Order: order}, nil
}
