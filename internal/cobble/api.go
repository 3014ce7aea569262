// Package cobble is the Public API (C10): the single entry point an
// embedding CLI or service uses to load a workspace and run the four
// top-level operations (execute_tasks, clean_tasks, check_tools,
// do_env_actions) plus the read-only show/list queries.
package cobble

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/jdarais/cobble/internal/action"
	"github.com/jdarais/cobble/internal/calcdep"
	"github.com/jdarais/cobble/internal/cobleerr"
	"github.com/jdarais/cobble/internal/config"
	"github.com/jdarais/cobble/internal/console"
	execpkg "github.com/jdarais/cobble/internal/exec"
	"github.com/jdarais/cobble/internal/plan"
	"github.com/jdarais/cobble/internal/store"
	"github.com/jdarais/cobble/internal/workspace"
)

// RecordStoreFile is the conventional name of a workspace's persisted
// record store, resolved relative to the workspace root.
const RecordStoreFile = ".cobble.db"

// API is a handle to one open workspace.
type API struct {
	WS      *workspace.Workspace
	Store   *store.Store
	Host    action.Host
	Console *console.Multiplexer
	Config  *config.Config

	workers int
	show    console.ShowOutput
}

// Open loads the project definitions under workspaceDir through host,
// builds and validates the workspace graph, and opens its record
// store. cfg may be nil, in which case config.Default() applies.
func Open(ctx context.Context, workspaceDir string, host action.Host, cfg *config.Config) (*API, error) {
	const op = "cobble.Open"
	if cfg == nil {
		cfg = config.Default()
	}

	parsed, err := host.LoadWorkspace(ctx, workspaceDir, cfg.RootProjects)
	if err != nil {
		return nil, cobleerr.Wrap(cobleerr.Parse, op, err)
	}

	ws, err := workspace.Build(parsed.Projects)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, filepath.Join(workspaceDir, RecordStoreFile))
	if err != nil {
		return nil, err
	}

	workers := cfg.NumThreads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	outputPolicy := console.ShowOnFail
	switch cfg.Output {
	case config.OutputNone:
		outputPolicy = console.ShowNone
	case config.OutputAll:
		outputPolicy = console.ShowAlways
	}

	return &API{
		WS:      ws,
		Store:   st,
		Host:    host,
		Console: console.New(os.Stdout),
		Config:  cfg,
		workers: workers,
		show:    outputPolicy,
	}, nil
}

// SetOutput overrides where the console writes status output. Open
// defaults it to os.Stdout.
func (a *API) SetOutput(c *console.Multiplexer) { a.Console = c }

// ExecuteTasks resolves calculated dependencies, plans, and runs
// targets (task or project: names).
func (a *API) ExecuteTasks(ctx context.Context, targets []string) (*execpkg.Result, error) {
	if err := calcdep.Resolve(ctx, a.WS, a.Host, a.Store, a.workers); err != nil {
		return nil, err
	}
	p, err := plan.Execute(a.WS, targets)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, p)
}

// CleanTasks plans and runs the clean:<task> pseudo-jobs for targets.
func (a *API) CleanTasks(ctx context.Context, targets []string) (*execpkg.Result, error) {
	p, err := plan.Clean(a.WS, targets)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, p)
}

// CheckTools plans and runs check jobs for names (or every tool if
// names is empty).
func (a *API) CheckTools(ctx context.Context, names []string) (*execpkg.Result, error) {
	p, err := plan.CheckTools(a.WS, names)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, p)
}

// DoEnvActions plans and runs setup jobs for the named build envs (or
// every build env if names is empty), forwarding args into each
// setup action's context — the "cobl env run NAME -- ARGS" contract.
func (a *API) DoEnvActions(ctx context.Context, names []string, args []string) (*execpkg.Result, error) {
	p, err := plan.EnvActions(a.WS, names, args)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, p)
}

func (a *API) run(ctx context.Context, p *plan.Plan) (*execpkg.Result, error) {
	ex := &execpkg.Executor{
		WS:           a.WS,
		Store:        a.Store,
		Host:         a.Host,
		Console:      a.Console,
		NumWorkers:   a.workers,
		OutputPolicy: a.show,
	}
	return ex.Run(ctx, p)
}

// Show returns the named task and whether it exists.
func (a *API) Show(name string) (*workspace.Task, bool) {
	t, ok := a.WS.Tasks[name]
	return t, ok
}

// List returns every real (non-pseudo) task name in the workspace.
func (a *API) List() []string {
	names := make([]string, 0, len(a.WS.Tasks))
	for name, t := range a.WS.Tasks {
		if t.Kind != workspace.KindTask {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Close releases the record store.
func (a *API) Close() error { return a.Store.Close() }
