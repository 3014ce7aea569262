package action

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/jdarais/cobble/internal/cobleerr"
	"github.com/jdarais/cobble/internal/procrun"
	"github.com/jdarais/cobble/internal/workspace"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ProcessHost is a minimal ActionHost that can run workspace.ActionCmd
// actions directly via procrun, with no embedded scripting language.
// It rejects workspace.ActionFunc actions and has no project-loading
// capability of its own — callers assemble a workspace.Workspace
// directly (e.g. from tests or from a config format with no scripting
// needs) rather than via LoadWorkspace.
type ProcessHost struct{}

// NewProcessHost returns a ProcessHost.
func NewProcessHost() *ProcessHost { return &ProcessHost{} }

func (h *ProcessHost) LoadWorkspace(ctx context.Context, workspaceDir string, rootProjects []string) (*ParsedProjects, error) {
	return nil, cobleerr.New(cobleerr.Script, "ProcessHost.LoadWorkspace",
		"the process host has no project-definition parser; supply a workspace.Workspace directly")
}

func (h *ProcessHost) ValidateBuildEnv(v workspace.ScriptValue) error { return nil }
func (h *ProcessHost) ValidateTask(v workspace.ScriptValue) error     { return nil }
func (h *ProcessHost) ValidateTool(v workspace.ScriptValue) error     { return nil }

// Invoke runs act.Cmd as a subprocess, feeding it actx's environment
// and streaming its output through actx.Stdout/Stderr. The action's
// result is a JSON object {"exit_code": N, "stdout": "...",
// "stderr": "..."}; success is exit code zero. An ActionDeleteFiles
// action is handled directly, with no subprocess involved.
func (h *ProcessHost) Invoke(ctx context.Context, act workspace.Action, actx *Context) (bool, workspace.ScriptValue, error) {
	const op = "ProcessHost.Invoke"

	if act.Kind == workspace.ActionDeleteFiles {
		return h.invokeDeleteFiles(act)
	}
	if act.Kind != workspace.ActionCmd || act.Cmd == nil {
		return false, nil, cobleerr.New(cobleerr.Script, op, "process host can only run Cmd and DeleteFiles actions")
	}

	env := make([]string, 0, len(actx.Env)+len(act.Cmd.Env))
	for k, v := range actx.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range act.Cmd.Env {
		env = append(env, k+"="+expandVars(v, actx.Vars))
	}

	args := make([]string, len(act.Cmd.Args))
	for i, a := range act.Cmd.Args {
		args[i] = expandVars(a, actx.Vars)
	}
	// Extra CLI arguments forwarded by do_env_actions's "-- ARGS" are
	// appended verbatim, after var expansion of the action's own argv.
	args = append(args, actx.Args...)

	res, err := procrun.Run(ctx, procrun.Config{
		Program: act.Cmd.Program,
		Args:    args,
		Env:     env,
		LineFunc: func(stream, line string) {
			switch stream {
			case "stdout":
				if actx.Stdout != nil {
					actx.Stdout(line)
				}
			case "stderr":
				if actx.Stderr != nil {
					actx.Stderr(line)
				}
			}
		},
	})
	if err != nil {
		return false, nil, cobleerr.Wrap(cobleerr.ActionFailed, op, err)
	}

	out, buildErr := buildResult(res.ExitCode, res.Stdout, res.Stderr)
	if buildErr != nil {
		return false, nil, cobleerr.Wrap(cobleerr.IO, op, buildErr)
	}
	return res.ExitCode == 0, out, nil
}

// invokeDeleteFiles removes every path in act.DeleteFiles, tolerating
// paths that are already missing (clean must be idempotent).
func (h *ProcessHost) invokeDeleteFiles(act workspace.Action) (bool, workspace.ScriptValue, error) {
	const op = "ProcessHost.invokeDeleteFiles"
	deleted := make([]string, 0, len(act.DeleteFiles))
	for _, p := range act.DeleteFiles {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return false, nil, cobleerr.Wrap(cobleerr.IO, op, err)
		} else if err == nil {
			deleted = append(deleted, p)
		}
	}
	doc, err := sjson.Set(`{}`, "deleted", deleted)
	if err != nil {
		return false, nil, cobleerr.Wrap(cobleerr.IO, op, err)
	}
	return true, workspace.ScriptValue(doc), nil
}

func (h *ProcessHost) Serialize(v any) (workspace.ScriptValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, cobleerr.Wrap(cobleerr.Script, "ProcessHost.Serialize", err)
	}
	return data, nil
}

func (h *ProcessHost) Deserialize(data workspace.ScriptValue, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return cobleerr.Wrap(cobleerr.Script, "ProcessHost.Deserialize", err)
	}
	return nil
}

func buildResult(exitCode int, stdout, stderr string) (workspace.ScriptValue, error) {
	doc := `{}`
	var err error
	doc, err = sjson.Set(doc, "exit_code", exitCode)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.Set(doc, "stdout", stdout)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.Set(doc, "stderr", stderr)
	if err != nil {
		return nil, err
	}
	return workspace.ScriptValue(doc), nil
}

// ResultExitCode reads the exit_code field out of a ProcessHost result
// value using gjson, without a full unmarshal.
func ResultExitCode(result workspace.ScriptValue) int {
	return int(gjson.GetBytes(result, "exit_code").Int())
}

func expandVars(s string, vars map[string]workspace.VarValue) string {
	if !strings.Contains(s, "${") {
		return s
	}
	out := s
	for name, v := range vars {
		placeholder := "${" + name + "}"
		if v.Str != "" {
			out = strings.ReplaceAll(out, placeholder, v.Str)
		}
	}
	return out
}

var _ Host = (*ProcessHost)(nil)
