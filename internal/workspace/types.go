// Package workspace builds and validates the Task/BuildEnv/ExternalTool
// dependency graph that every other Cobble component plans and
// executes against.
package workspace

import "encoding/json"

// ScriptValue is an opaque, host-interpreted value. Cobble's core
// never inspects its contents beyond hashing and storing it; only the
// configured action.Host attaches meaning to it.
type ScriptValue = json.RawMessage

// VarValue is a workspace variable's resolved value, coerced from a
// cobble.toml leaf into one of three shapes (see SPEC_FULL.md §3).
type VarValue struct {
	Str  string
	List []string
	Map  map[string]string
}

// ActionKind distinguishes a shell-command action, a script/host
// function reference, and the synthetic file-deletion step clean jobs
// append after a task's own CleanActions.
type ActionKind int

const (
	// ActionCmd runs an external program.
	ActionCmd ActionKind = iota
	// ActionFunc invokes a host-defined function by opaque reference.
	ActionFunc
	// ActionDeleteFiles removes the paths in DeleteFiles from disk,
	// ignoring already-missing files. Build synthesizes one of these
	// per clean task, appended after the cleaned task's own
	// CleanActions, per SPEC_FULL.md §3.
	ActionDeleteFiles
)

// CmdAction is the argv and environment overlay for a subprocess
// action.
type CmdAction struct {
	Program string
	Args    []string
	Env     map[string]string
}

// Action is a single step of a task, build env, or tool's action list.
// Tools/Envs/Kwargs are the action's own tool/env requirements and
// keyword arguments; the Action Context Builder (C9) unions Tools/Envs
// with the enclosing task's Tool/BuildEnv before invocation, so a
// single action can reach beyond the build env or tool its task is
// already scoped to.
type Action struct {
	Kind ActionKind
	Cmd  *CmdAction
	// Func holds the host-opaque reference used when Kind is
	// ActionFunc; its shape is defined entirely by the action.Host in
	// use and is never interpreted here.
	Func ScriptValue
	// DeleteFiles holds the paths to remove when Kind is
	// ActionDeleteFiles.
	DeleteFiles []string

	Tools  []string
	Envs   []string
	Kwargs map[string]ScriptValue
}

// FileDep names a file a task reads. If ProvidedByTask is non-empty,
// the file is an artifact of that task rather than a plain on-disk
// input, and the job planner adds an edge from this task to it.
type FileDep struct {
	Path           string
	ProvidedByTask string
}

// Dependencies are the three dependency kinds a task, build env, or
// tool may declare.
type Dependencies struct {
	FileDeps []FileDep
	CalcDeps []string
	TaskDeps []string
}

// Kind distinguishes a user-declared task from the pseudo-tasks Build
// derives from it: a project aggregate, a build env's cacheable setup,
// and the clean counterpart of each of those three.
type Kind int

const (
	KindTask Kind = iota
	KindProject
	KindBuildEnv
	KindCleanTask
	KindCleanProject
	KindCleanBuildEnv
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindProject:
		return "project"
	case KindBuildEnv:
		return "build_env"
	case KindCleanTask:
		return "clean_task"
	case KindCleanProject:
		return "clean_project"
	case KindCleanBuildEnv:
		return "clean_build_env"
	default:
		return "unknown"
	}
}

// Task is a unit of work: a named set of actions, its dependencies,
// the files it produces, and the build env/tool it runs under. Build
// also uses Task to represent the pseudo-tasks it derives (Kind !=
// KindTask): a project aggregate, a build env/tool's cacheable setup,
// and each of their clean counterparts, so the plan and exec packages
// never need a parallel representation for "a thing with actions and
// dependencies that can be up-to-date-checked and run."
type Task struct {
	Name    string
	Kind    Kind
	Project string
	// ProjectDir is the directory the owning project's definition file
	// was loaded from; calc-dep output paths reported relative are
	// resolved against it before being recorded as FileDeps.
	ProjectDir string

	Actions []Action
	// CleanActions are a task's own clean steps (e.g. "go clean"), run
	// before the synthetic ActionDeleteFiles step Build appends when
	// materializing this task's clean:<name> counterpart.
	CleanActions []Action

	Deps Dependencies
	// ExecuteAfter lists job names this task must be ordered after
	// with no accompanying data dependency — used for invariant I5: a
	// build env's clean:<env> task is ordered after every task that
	// references that env, so a task's own clean action can still run
	// while the env it needs is still in place.
	ExecuteAfter []string

	Artifacts []string
	BuildEnv  string
	Tool      string
	AlwaysRun bool
	IsCalc    bool
	// Default marks a task as one of the ones project:<name> depends
	// on when the project itself, rather than one of its tasks, is
	// named as a target.
	Default bool
	// ProjectSourceDeps is, for a KindProject task, every task
	// declared in the project, in declaration order (the same list
	// Build expands clean:project:<name> over; nothing reads this
	// field afterwards).
	ProjectSourceDeps []string

	Vars map[string]VarValue
}

// BuildEnv is a named environment (e.g. a toolchain install) whose
// setup actions run before any task that references it.
type BuildEnv struct {
	Name string
	Dir  string
	Deps Dependencies
	// Install are the setup actions; Clean are the (optional) actions
	// that tear the env back down.
	Install []Action
	Clean   []Action
	Vars    map[string]VarValue

	// SetupTask and CleanTask are populated by Build: the Task nodes
	// (Kind KindBuildEnv / KindCleanBuildEnv) that make this env's
	// setup a regular, cacheable, up-to-date-checked unit of work
	// instead of a bespoke re-run-every-time code path.
	SetupTask *Task
	CleanTask *Task
}

// ExternalTool is a named external dependency whose presence Cobble
// can check on demand, and which may also declare its own install/
// clean steps (e.g. "install via package manager" vs. "just look for
// it on PATH").
type ExternalTool struct {
	Name        string
	Dir         string
	Deps        Dependencies
	CheckAction Action
	Install     []Action
	Clean       []Action

	// SetupTask/CleanTask mirror BuildEnv's: populated by Build only
	// when Install is non-empty, giving a tool with a real install
	// step the same cacheable-setup treatment as a build env.
	SetupTask *Task
	CleanTask *Task
}

// TaskInput is the hashed view of everything a task's up-to-date
// check depends on: its file deps' content hashes and its var
// bindings. CalcHashes is left empty by the executor, since calc deps
// are merged into FileDeps/TaskDeps before planning.
type TaskInput struct {
	FileHashes map[string]string
	CalcHashes map[string]string
	VarsHash   string
}

// TaskOutput is a task's recorded result: the host-opaque value its
// last action returned, plus the hashes of any artifacts it produced.
type TaskOutput struct {
	Value          ScriptValue
	ArtifactHashes map[string]string
}

// TaskRecord is what the record store persists per task: the input
// hash that produced Output, so a later run can tell whether its own
// computed TaskInput matches.
type TaskRecord struct {
	InputHash string
	Output    TaskOutput
}
