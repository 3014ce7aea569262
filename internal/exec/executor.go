// Package exec schedules and runs a plan.Plan's jobs: the Executor
// (C6) dispatches jobs to a bounded worker pool respecting the plan's
// dependency edges and cancels remaining work on first failure; the
// Worker logic (C7) lives in runTask/runClean/runCheckTool below, one
// per plan.Kind.
package exec

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jdarais/cobble/internal/action"
	"github.com/jdarais/cobble/internal/cobleerr"
	"github.com/jdarais/cobble/internal/console"
	"github.com/jdarais/cobble/internal/hash"
	"github.com/jdarais/cobble/internal/plan"
	"github.com/jdarais/cobble/internal/store"
	"github.com/jdarais/cobble/internal/workspace"
)

// Executor owns everything a job needs to run: the workspace it was
// planned from, the record store, the action host, and the console it
// reports progress to.
type Executor struct {
	WS           *workspace.Workspace
	Store        *store.Store
	Host         action.Host
	Console      *console.Multiplexer
	NumWorkers   int
	OutputPolicy console.ShowOutput
}

// Result aggregates every job's final status and error, if any. RunID
// identifies this particular Run invocation in logs, independent of
// any job id, so a job retried across two separate Run calls (e.g. a
// calc-dep resolution pass followed by the real operation) can be
// told apart in diagnostics.
type Result struct {
	mu       sync.Mutex
	RunID    string
	Statuses map[string]console.Status
	Errs     map[string]error
}

func newResult() *Result {
	return &Result{RunID: uuid.NewString(), Statuses: map[string]console.Status{}, Errs: map[string]error{}}
}

func (r *Result) set(id string, status console.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Statuses[id] = status
	if err != nil {
		r.Errs[id] = err
	}
}

func (r *Result) statusOf(id string) console.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Statuses[id]
}

// HasFailures reports whether any job in the result failed.
func (r *Result) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errs) > 0
}

// Run schedules every job in p, respecting Needs edges, across
// e.NumWorkers concurrent goroutines (one per in-flight job, bounded
// by a semaphore — the Go-native rendition of the mutex-guarded job
// queue described in SPEC_FULL.md §5). The first job to fail cancels
// the shared context; in-flight jobs run to completion without their
// actions being interrupted, and jobs not yet started are marked
// Skipped.
func (e *Executor) Run(ctx context.Context, p *plan.Plan) (*Result, error) {
	numWorkers := e.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	sem := semaphore.NewWeighted(int64(numWorkers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	doneCh := make(map[string]chan struct{}, len(p.Jobs))
	for id := range p.Jobs {
		doneCh[id] = make(chan struct{})
	}

	result := newResult()
	var wg sync.WaitGroup
	var cancelOnce sync.Once

	for id, job := range p.Jobs {
		wg.Add(1)
		go func(id string, job *plan.Job) {
			defer wg.Done()
			defer close(doneCh[id])

			for _, dep := range job.Needs {
				select {
				case <-doneCh[dep]:
				case <-runCtx.Done():
					result.set(id, console.Skipped, runCtx.Err())
					return
				}
				if st := result.statusOf(dep); st == console.Failed || st == console.Skipped {
					result.set(id, console.Skipped, fmt.Errorf("dependency %q did not succeed", dep))
					return
				}
			}

			if runCtx.Err() != nil {
				result.set(id, console.Skipped, runCtx.Err())
				return
			}
			if err := sem.Acquire(runCtx, 1); err != nil {
				result.set(id, console.Skipped, err)
				return
			}
			defer sem.Release(1)

			// A started job runs to completion: cancellation only stops
			// jobs that have not started yet.
			status, err := e.runJob(context.WithoutCancel(runCtx), id, job)
			result.set(id, status, err)
			if err != nil {
				cancelOnce.Do(cancel)
			}
		}(id, job)
	}

	wg.Wait()
	return result, nil
}

func (e *Executor) runJob(ctx context.Context, id string, job *plan.Job) (console.Status, error) {
	e.Console.Start(id)
	var status console.Status
	var err error

	switch job.Kind {
	case plan.RunTask:
		status, err = e.runTask(ctx, id, job)
	case plan.CleanTask, plan.CleanProject, plan.CleanBuildEnv:
		status, err = e.runClean(ctx, id, job.Task)
	case plan.CheckTool:
		status, err = e.runCheckTool(ctx, id, job.Tool)
	default:
		status, err = console.Failed, fmt.Errorf("unknown job kind %v", job.Kind)
	}

	e.Console.Finish(id, status, err, e.OutputPolicy)
	return status, err
}

// runTask is the Worker (C7) up-to-date check and action-invocation
// loop: hash the task's inputs, compare against its stored record, and
// only invoke its actions when the input hash has changed or a
// previously recorded artifact no longer matches what was hashed at
// record time. A KindProject aggregate has no actions or artifacts of
// its own — it exists only to order its dependencies — so it always
// succeeds immediately once those dependencies have.
func (e *Executor) runTask(ctx context.Context, id string, job *plan.Job) (console.Status, error) {
	const op = "exec.runTask"
	task := job.Task

	if task.Kind == workspace.KindProject {
		return console.Success, nil
	}

	input, err := computeInput(task)
	if err != nil {
		return console.Failed, cobleerr.Wrap(cobleerr.IO, op, err)
	}
	inputHash := hash.Combine(inputHashParts(input)...)

	prior, err := e.Store.Get(ctx, task.Name)
	upToDate := false
	var prevOut workspace.ScriptValue
	if err == nil {
		prevOut = prior.Output.Value
		if prior.InputHash == inputHash && !task.AlwaysRun {
			currentArtifacts, hashErr := hashArtifacts(task.Artifacts)
			if hashErr == nil && artifactHashesMatch(prior.Output.ArtifactHashes, currentArtifacts) {
				upToDate = true
			}
		}
	}

	if upToDate {
		return console.UpToDate, nil
	}

	taskOutputs := e.fetchTaskOutputs(ctx, task)

	var lastOut workspace.ScriptValue
	for _, act := range task.Actions {
		actx := e.buildContext(id, task, act, input, prevOut, taskOutputs, job.Args)
		ok, result, err := e.Host.Invoke(ctx, act, actx)
		if err != nil {
			return console.Failed, cobleerr.Wrap(cobleerr.ActionFailed, op, err)
		}
		if !ok {
			return console.Failed, cobleerr.New(cobleerr.ActionFailed, op, fmt.Sprintf("task %q action reported failure", task.Name))
		}
		lastOut = result
		prevOut = result
	}

	artifactHashes, err := hashArtifacts(task.Artifacts)
	if err != nil {
		return console.Failed, cobleerr.Wrap(cobleerr.IO, op, err)
	}

	rec := &workspace.TaskRecord{
		InputHash: inputHash,
		Output:    workspace.TaskOutput{Value: lastOut, ArtifactHashes: artifactHashes},
	}
	if err := e.Store.Put(ctx, task.Name, rec); err != nil {
		return console.Failed, cobleerr.Wrap(cobleerr.IO, op, err)
	}

	return console.Success, nil
}

// runClean runs a clean pseudo-task's actions (the cleaned task's own
// CleanActions followed by the synthetic ActionDeleteFiles Build
// appended, for a KindCleanTask; a build env/tool's own Clean actions,
// for KindCleanBuildEnv; nothing for a KindCleanProject aggregate) and
// then drops the record-store entry for whatever this clean job
// corresponds to, so the next run cannot see a stale up-to-date
// record for artifacts that no longer exist.
func (e *Executor) runClean(ctx context.Context, id string, task *workspace.Task) (console.Status, error) {
	const op = "exec.runClean"
	for _, act := range task.Actions {
		actx := e.buildContext(id, task, act, workspace.TaskInput{}, nil, nil, nil)
		ok, _, err := e.Host.Invoke(ctx, act, actx)
		if err != nil {
			return console.Failed, cobleerr.Wrap(cobleerr.ActionFailed, op, err)
		}
		if !ok {
			return console.Failed, cobleerr.New(cobleerr.ActionFailed, op, fmt.Sprintf("clean job %q action reported failure", task.Name))
		}
	}
	sourceName := task.Name[len(workspace.CleanPrefix):]
	if err := e.Store.Delete(ctx, sourceName); err != nil {
		return console.Failed, cobleerr.Wrap(cobleerr.IO, op, err)
	}
	return console.Success, nil
}

func (e *Executor) runCheckTool(ctx context.Context, id string, tool *workspace.ExternalTool) (console.Status, error) {
	const op = "exec.runCheckTool"
	actx := &action.Context{TaskName: id, ProjectDir: tool.Dir}
	ok, _, err := e.Host.Invoke(ctx, tool.CheckAction, actx)
	if err != nil {
		return console.Failed, cobleerr.Wrap(cobleerr.ActionFailed, op, err)
	}
	if !ok {
		return console.Failed, cobleerr.New(cobleerr.ActionFailed, op, fmt.Sprintf("tool %q not available", tool.Name))
	}
	return console.Success, nil
}

// fetchTaskOutputs collects the recorded output value of every task
// this one depends on via Deps.TaskDeps, for exposure as the acting
// task's task_outputs. A dependency with no recorded output (e.g. a
// project aggregate, or a task that has never produced one) is simply
// omitted rather than treated as an error.
func (e *Executor) fetchTaskOutputs(ctx context.Context, task *workspace.Task) map[string]workspace.ScriptValue {
	if len(task.Deps.TaskDeps) == 0 {
		return nil
	}
	out := make(map[string]workspace.ScriptValue, len(task.Deps.TaskDeps))
	for _, dep := range task.Deps.TaskDeps {
		rec, err := e.Store.Get(ctx, dep)
		if err != nil {
			continue
		}
		out[dep] = rec.Output.Value
	}
	return out
}

func artifactHashesMatch(prior, current map[string]string) bool {
	if len(prior) != len(current) {
		return false
	}
	for path, h := range current {
		if prior[path] != h {
			return false
		}
	}
	return true
}

func computeInput(task *workspace.Task) (workspace.TaskInput, error) {
	fileHashes := map[string]string{}
	for _, fd := range task.Deps.FileDeps {
		h, err := hash.File(fd.Path)
		if err != nil {
			return workspace.TaskInput{}, err
		}
		fileHashes[fd.Path] = h
	}

	varNames := make([]string, 0, len(task.Vars))
	for name := range task.Vars {
		varNames = append(varNames, name)
	}
	sort.Strings(varNames)
	varStrs := make([]string, 0, len(varNames))
	for _, name := range varNames {
		v := task.Vars[name]
		varStrs = append(varStrs, name+"="+v.Str, name+"[]="+hash.Strings(v.List))
	}

	return workspace.TaskInput{
		FileHashes: fileHashes,
		CalcHashes: map[string]string{}, // calc deps are fully resolved into FileDeps/TaskDeps before planning
		VarsHash:   hash.Strings(varStrs),
	}, nil
}

func inputHashParts(in workspace.TaskInput) []string {
	names := make([]string, 0, len(in.FileHashes))
	for name := range in.FileHashes {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names)+len(in.CalcHashes)+1)
	for _, name := range names {
		parts = append(parts, name+"="+in.FileHashes[name])
	}
	calcNames := make([]string, 0, len(in.CalcHashes))
	for name := range in.CalcHashes {
		calcNames = append(calcNames, name)
	}
	sort.Strings(calcNames)
	for _, name := range calcNames {
		parts = append(parts, name+"="+in.CalcHashes[name])
	}
	parts = append(parts, in.VarsHash)
	return parts
}

func hashArtifacts(paths []string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range paths {
		h, err := hash.File(p)
		if err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, nil
}

// buildContext assembles the ActionContext for a single action
// invocation: act's own Tools/Envs/Kwargs unioned with task's
// Tool/BuildEnv, task_outputs from dependency tasks, and the stdout/
// stderr/stdin callbacks routed through the console.
func (e *Executor) buildContext(
	jobID string,
	task *workspace.Task,
	act workspace.Action,
	input workspace.TaskInput,
	prevOut workspace.ScriptValue,
	taskOutputs map[string]workspace.ScriptValue,
	args []string,
) *action.Context {
	return &action.Context{
		TaskName:    task.Name,
		ProjectDir:  task.ProjectDir,
		Vars:        task.Vars,
		Input:       input,
		PrevOut:     prevOut,
		TaskOutputs: taskOutputs,
		Tools:       unionNonEmpty(act.Tools, task.Tool),
		Envs:        unionNonEmpty(act.Envs, task.BuildEnv),
		Kwargs:      act.Kwargs,
		Args:        args,
		Stdout:      func(line string) { e.Console.Stdout(jobID, line) },
		Stderr:      func(line string) { e.Console.Stderr(jobID, line) },
		Stdin: func(ctx context.Context) (action.StdinReader, error) {
			return e.Console.AcquireStdin(ctx, jobID)
		},
	}
}

// unionNonEmpty returns values with extra appended, if extra is
// non-empty and not already present.
func unionNonEmpty(values []string, extra string) []string {
	if extra == "" {
		return values
	}
	for _, v := range values {
		if v == extra {
			return values
		}
	}
	return append(append([]string{}, values...), extra)
}
