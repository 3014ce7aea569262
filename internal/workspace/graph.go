package workspace

import (
	"fmt"
	"strings"

	"github.com/jdarais/cobble/internal/cobleerr"
)

// CleanPrefix and ProjectPrefix name the two families of pseudo-tasks
// derived from the workspace graph: "clean:<task>" removes a task's
// artifacts, "project:<name>" aggregates a project's default tasks
// (every task it declares, if none is marked Default). Build materializes both families (plus a build env/tool's
// own setup/clean pair) as ordinary *Task entries in Workspace.Tasks,
// distinguished by Task.Kind, so the plan and exec packages never need
// a separate notion of "pseudo-job."
const (
	CleanPrefix   = "clean:"
	ProjectPrefix = "project:"
	envPrefix     = "env:"
	toolPrefix    = "tool:"
)

// ProjectDef is one project's worth of graph input: the tasks, build
// envs, and tools it declares. Parsing project definition files
// (project.lua or equivalent) into ProjectDefs is the job of the
// configured action.Host; Build only assembles and validates already-
// parsed definitions.
type ProjectDef struct {
	Name      string
	Dir       string
	Tasks     []*Task
	BuildEnvs []*BuildEnv
	Tools     []*ExternalTool
}

// Workspace is the fully validated, queryable graph of every task,
// build env, and tool across all loaded projects, plus the derived
// clean/project/build-env-setup pseudo-tasks and the file-provider map
// used to turn a FileDep into a cross-task edge.
type Workspace struct {
	Tasks         map[string]*Task
	BuildEnvs     map[string]*BuildEnv
	Tools         map[string]*ExternalTool
	Projects      map[string][]string // project name -> task names, insertion order
	fileProviders map[string]string   // artifact path -> producing task name
}

// Build assembles a Workspace from a set of project definitions,
// validates invariants I1-I5, and materializes every derived
// pseudo-task (project aggregates, clean counterparts, build-env/tool
// setup). It returns a *cobleerr.Error on any violation.
func Build(projects []ProjectDef) (*Workspace, error) {
	const op = "workspace.Build"

	ws := &Workspace{
		Tasks:         map[string]*Task{},
		BuildEnvs:     map[string]*BuildEnv{},
		Tools:         map[string]*ExternalTool{},
		Projects:      map[string][]string{},
		fileProviders: map[string]string{},
	}

	// Pass 1: register every task/build-env/tool, rejecting duplicate
	// names (I1) before any cross-reference is checked.
	for _, p := range projects {
		names := make([]string, 0, len(p.Tasks))
		for _, t := range p.Tasks {
			if _, exists := ws.Tasks[t.Name]; exists {
				return nil, cobleerr.Wrap(cobleerr.Graph, op,
					fmt.Errorf("duplicate task name %q", t.Name))
			}
			if strings.HasPrefix(t.Name, CleanPrefix) || strings.HasPrefix(t.Name, ProjectPrefix) {
				return nil, cobleerr.Wrap(cobleerr.Graph, op,
					fmt.Errorf("task name %q uses a reserved pseudo-task prefix", t.Name))
			}
			t.Kind = KindTask
			t.Project = p.Name
			t.ProjectDir = p.Dir
			ws.Tasks[t.Name] = t
			names = append(names, t.Name)

			for _, a := range t.Artifacts {
				if owner, exists := ws.fileProviders[a]; exists {
					return nil, cobleerr.Wrap(cobleerr.Graph, op,
						fmt.Errorf("artifact %q is produced by both %q and %q", a, owner, t.Name))
				}
				ws.fileProviders[a] = t.Name
			}
		}
		ws.Projects[p.Name] = names

		for _, be := range p.BuildEnvs {
			if _, exists := ws.BuildEnvs[be.Name]; exists {
				return nil, cobleerr.Wrap(cobleerr.Graph, op,
					fmt.Errorf("duplicate build env name %q", be.Name))
			}
			ws.BuildEnvs[be.Name] = be
		}

		for _, tool := range p.Tools {
			if _, exists := ws.Tools[tool.Name]; exists {
				return nil, cobleerr.Wrap(cobleerr.Graph, op,
					fmt.Errorf("duplicate tool name %q", tool.Name))
			}
			ws.Tools[tool.Name] = tool
		}
	}

	// Pass 2: cross-reference validation (I2, I3).
	for _, t := range ws.Tasks {
		if t.BuildEnv != "" {
			if _, ok := ws.BuildEnvs[t.BuildEnv]; !ok {
				return nil, cobleerr.Wrap(cobleerr.Lookup, op,
					fmt.Errorf("task %q references unknown build env %q", t.Name, t.BuildEnv))
			}
		}
		if t.Tool != "" {
			if _, ok := ws.Tools[t.Tool]; !ok {
				return nil, cobleerr.Wrap(cobleerr.Lookup, op,
					fmt.Errorf("task %q references unknown tool %q", t.Name, t.Tool))
			}
		}
		for _, dep := range t.Deps.TaskDeps {
			if dep == t.Name {
				return nil, cobleerr.Wrap(cobleerr.Graph, op,
					fmt.Errorf("task %q declares itself as a task dep", t.Name))
			}
			if _, ok := ws.Tasks[dep]; !ok {
				return nil, cobleerr.Wrap(cobleerr.Lookup, op,
					fmt.Errorf("task %q depends on unknown task %q", t.Name, dep))
			}
		}
		for _, dep := range t.Deps.CalcDeps {
			if dep == t.Name {
				return nil, cobleerr.Wrap(cobleerr.Graph, op,
					fmt.Errorf("task %q declares itself as a calc dep", t.Name))
			}
			calc, ok := ws.Tasks[dep]
			if !ok {
				return nil, cobleerr.Wrap(cobleerr.Lookup, op,
					fmt.Errorf("task %q depends on unknown calc task %q", t.Name, dep))
			}
			if !calc.IsCalc {
				return nil, cobleerr.Wrap(cobleerr.Graph, op,
					fmt.Errorf("task %q names %q as a calc dep but it is not a calc task", t.Name, dep))
			}
		}
		for _, fd := range t.Deps.FileDeps {
			if fd.ProvidedByTask == "" {
				continue
			}
			producer, ok := ws.Tasks[fd.ProvidedByTask]
			if !ok {
				return nil, cobleerr.Wrap(cobleerr.Lookup, op,
					fmt.Errorf("task %q names unknown task %q as provider of %q", t.Name, fd.ProvidedByTask, fd.Path))
			}
			found := false
			for _, a := range producer.Artifacts {
				if a == fd.Path {
					found = true
					break
				}
			}
			if !found {
				return nil, cobleerr.Wrap(cobleerr.Graph, op,
					fmt.Errorf("task %q claims %q provides %q, but %q has no such artifact",
						t.Name, fd.ProvidedByTask, fd.Path, fd.ProvidedByTask))
			}
		}
	}

	// dependents[x] lists every task name that depends on x via a
	// task/calc/file dep — used below to order clean:x after every
	// clean:<dependent>, so nothing is left referencing artifacts that
	// have already been deleted out from under it.
	dependents := map[string][]string{}
	for name, t := range ws.Tasks {
		for _, dep := range t.Deps.TaskDeps {
			dependents[dep] = append(dependents[dep], name)
		}
		for _, dep := range t.Deps.CalcDeps {
			dependents[dep] = append(dependents[dep], name)
		}
		for _, fd := range t.Deps.FileDeps {
			if fd.ProvidedByTask != "" {
				dependents[fd.ProvidedByTask] = append(dependents[fd.ProvidedByTask], name)
			}
		}
	}

	// Pass 3: materialize clean:<task> for every real task.
	for name, t := range ws.Tasks {
		if t.Kind != KindTask {
			continue
		}
		cleanName := CleanTaskName(name)
		executeAfter := make([]string, 0, len(dependents[name]))
		for _, dep := range dependents[name] {
			executeAfter = append(executeAfter, CleanTaskName(dep))
		}
		ws.Tasks[cleanName] = &Task{
			Name:         cleanName,
			Kind:         KindCleanTask,
			Project:      t.Project,
			ProjectDir:   t.ProjectDir,
			Actions:      append(append([]Action{}, t.CleanActions...), deleteFilesAction(t.Artifacts)),
			ExecuteAfter: executeAfter,
		}
	}

	// Pass 4: materialize project:<name> and clean:project:<name>.
	for _, p := range projects {
		projName := ProjectTaskName(p.Name)
		var defaults []string
		for _, t := range p.Tasks {
			if t.Default {
				defaults = append(defaults, t.Name)
			}
		}
		if len(defaults) == 0 {
			// No task opted in as a default: running the project runs
			// every task it declares.
			defaults = append(defaults, ws.Projects[p.Name]...)
		}
		cleanDeps := make([]string, 0, len(ws.Projects[p.Name]))
		for _, name := range ws.Projects[p.Name] {
			cleanDeps = append(cleanDeps, CleanTaskName(name))
		}
		ws.Tasks[projName] = &Task{
			Name:              projName,
			Kind:              KindProject,
			Project:           p.Name,
			ProjectDir:        p.Dir,
			Deps:              Dependencies{TaskDeps: defaults},
			ProjectSourceDeps: append([]string{}, ws.Projects[p.Name]...),
		}
		ws.Tasks[CleanTaskName(projName)] = &Task{
			Name:         CleanTaskName(projName),
			Kind:         KindCleanProject,
			Project:      p.Name,
			ProjectDir:   p.Dir,
			ExecuteAfter: cleanDeps,
		}
	}

	// Pass 5: materialize each build env's setup/clean task pair, then
	// the I5 post-pass ordering clean:env after every clean:<task>
	// that references that env.
	for name, env := range ws.BuildEnvs {
		setup := &Task{
			Name:    envPrefix + name,
			Kind:    KindBuildEnv,
			Actions: env.Install,
			Deps:    env.Deps,
			Vars:    env.Vars,
		}
		clean := &Task{
			Name:    CleanTaskName(envPrefix + name),
			Kind:    KindCleanBuildEnv,
			Actions: env.Clean,
		}
		ws.Tasks[setup.Name] = setup
		ws.Tasks[clean.Name] = clean
		env.SetupTask = setup
		env.CleanTask = clean
	}
	for name, tool := range ws.Tools {
		if len(tool.Install) == 0 {
			continue
		}
		setup := &Task{
			Name:    toolPrefix + name,
			Kind:    KindBuildEnv,
			Actions: tool.Install,
			Deps:    tool.Deps,
		}
		clean := &Task{
			Name:    CleanTaskName(toolPrefix + name),
			Kind:    KindCleanBuildEnv,
			Actions: tool.Clean,
		}
		ws.Tasks[setup.Name] = setup
		ws.Tasks[clean.Name] = clean
		tool.SetupTask = setup
		tool.CleanTask = clean
	}

	// Invariant I5: every real task using a build env or tool orders
	// that env/tool's clean job after its own clean job completes.
	for _, t := range ws.Tasks {
		if t.Kind != KindTask {
			continue
		}
		if t.BuildEnv != "" {
			if env, ok := ws.BuildEnvs[t.BuildEnv]; ok && env.CleanTask != nil {
				env.CleanTask.ExecuteAfter = append(env.CleanTask.ExecuteAfter, CleanTaskName(t.Name))
			}
		}
		if t.Tool != "" {
			if tool, ok := ws.Tools[t.Tool]; ok && tool.CleanTask != nil {
				tool.CleanTask.ExecuteAfter = append(tool.CleanTask.ExecuteAfter, CleanTaskName(t.Name))
			}
		}
	}

	return ws, nil
}

func deleteFilesAction(paths []string) Action {
	return Action{Kind: ActionDeleteFiles, DeleteFiles: append([]string{}, paths...)}
}

// FileProvider returns the task that produces path as an artifact,
// and whether one exists.
func (w *Workspace) FileProvider(path string) (string, bool) {
	name, ok := w.fileProviders[path]
	return name, ok
}

// CleanTaskName returns the pseudo-task name for cleaning task.
func CleanTaskName(task string) string { return CleanPrefix + task }

// ProjectTaskName returns the pseudo-task name aggregating project.
func ProjectTaskName(project string) string { return ProjectPrefix + project }

// EnvSetupTaskName returns the pseudo-task name for a build env's
// cacheable setup.
func EnvSetupTaskName(env string) string { return envPrefix + env }

// ToolSetupTaskName returns the pseudo-task name for an external
// tool's cacheable install.
func ToolSetupTaskName(tool string) string { return toolPrefix + tool }

// IsPseudoTask reports whether name is a derived clean:/project: task
// rather than a real, user-declared one.
func IsPseudoTask(name string) bool {
	return strings.HasPrefix(name, CleanPrefix) || strings.HasPrefix(name, ProjectPrefix)
}
