package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clodputer/clodputer/internal/envsettings"
	"github.com/clodputer/clodputer/internal/taskconfig"
)

// invocation is a fully-built LLM CLI command line, ready for exec.Command.
type invocation struct {
	Path string
	Args []string
	Env  []string
}

// buildInvocation translates a task config (with env substitution already
// applied) into the external LLM CLI command line. The prompt travels
// positionally; everything else is a flag. Context entries are injected
// as child-process environment variables rather than CLI flags.
func buildInvocation(cliPath string, cfg *taskconfig.Config) invocation {
	args := make([]string, 0, 8+len(cfg.Task.AllowedTools)*2)

	if len(cfg.Task.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cfg.Task.AllowedTools, ","))
	}
	if len(cfg.Task.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(cfg.Task.DisallowedTools, ","))
	}
	if cfg.Task.PermissionMode != "" {
		args = append(args, "--permission-mode", string(cfg.Task.PermissionMode))
	}
	if cfg.Task.MCPConfigPath != "" {
		args = append(args, "--mcp-config", cfg.Task.MCPConfigPath)
	}
	args = append(args, "--output-format", "json")
	if cfg.Task.TimeoutSeconds > 0 {
		args = append(args, "--timeout", strconv.Itoa(cfg.Task.TimeoutSeconds))
	}
	args = append(args, cfg.Task.Prompt)

	if extra := envsettings.ExtraArgs(); len(extra) > 0 {
		args = append(args, extra...)
	}

	env := make([]string, 0, len(cfg.Task.Context))
	for k, v := range cfg.Task.Context {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	return invocation{Path: cliPath, Args: args, Env: env}
}
