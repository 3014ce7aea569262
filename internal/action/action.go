// Package action defines the ActionHost boundary between Cobble's
// core and whatever scripting/config language a deployment embeds, and
// assembles the per-action Context each invocation receives.
package action

import (
	"context"
	"encoding/json"

	"github.com/jdarais/cobble/internal/workspace"
)

// ParsedProjects is what a Host returns from loading project
// definition files: the raw project graph input, ready for
// workspace.Build.
type ParsedProjects struct {
	Projects []workspace.ProjectDef
}

// Host is the scripting-language boundary. Cobble's core never parses
// a project definition file or interprets a ScriptValue itself; both
// are delegated to a Host implementation supplied by the embedding
// application.
type Host interface {
	// LoadWorkspace discovers and parses every project definition
	// reachable under workspaceDir, seeded from rootProjects.
	LoadWorkspace(ctx context.Context, workspaceDir string, rootProjects []string) (*ParsedProjects, error)

	ValidateBuildEnv(v workspace.ScriptValue) error
	ValidateTask(v workspace.ScriptValue) error
	ValidateTool(v workspace.ScriptValue) error

	// Invoke runs a single action. success reports whether the task
	// should be considered to have succeeded; result is the host-
	// opaque value to persist as the task's output.
	Invoke(ctx context.Context, act workspace.Action, actx *Context) (success bool, result workspace.ScriptValue, err error)

	Serialize(v any) (workspace.ScriptValue, error)
	Deserialize(data workspace.ScriptValue, v any) error
}

// Context is everything an action invocation can read: the task's
// resolved vars, its environment, its file/calc dep inputs, the prior
// recorded output (if any), and callbacks to stream output and claim
// exclusive stdin, routed to the IO Multiplexer.
type Context struct {
	TaskName   string
	ProjectDir string
	Vars       map[string]workspace.VarValue
	Env        map[string]string
	Input      workspace.TaskInput
	PrevOut    workspace.ScriptValue

	// TaskOutputs holds, keyed by task name, the recorded output value
	// of every task this one depends on via Deps.TaskDeps — a
	// dependency task's result is visible to its consumer's actions
	// without either side needing a file in between.
	TaskOutputs map[string]workspace.ScriptValue

	// Tools and Envs are the union of the invoked action's own
	// Tools/Envs with its enclosing task's Tool/BuildEnv, resolved by
	// the Action Context Builder (C9) before invocation.
	Tools []string
	Envs  []string

	// Kwargs is the invoked action's own keyword-argument map, passed
	// through unexamined.
	Kwargs map[string]workspace.ScriptValue

	// Args carries extra CLI arguments forwarded by do_env_actions
	// (the "cobl env run NAME -- ARGS" contract); empty outside of
	// that call path.
	Args []string

	// Stdout/Stderr forward a line of output for this job to the IO
	// Multiplexer. Either may be nil.
	Stdout func(line string)
	Stderr func(line string)

	// Stdin, if non-nil, blocks until this job is granted exclusive
	// access to the shared terminal's stdin, then returns a reader
	// for it.
	Stdin func(ctx context.Context) (StdinReader, error)
}

// StdinReader is the minimal stdin contract an action needs; it is
// satisfied by *os.File and by the IO Multiplexer's proxy reader.
type StdinReader interface {
	Read(p []byte) (int, error)
}

// MustJSON serializes v to a workspace.ScriptValue, panicking on
// failure. It exists only for constructing fixtures and tests, where
// the input is always valid.
func MustJSON(v any) workspace.ScriptValue {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
