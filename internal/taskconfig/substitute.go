package taskconfig

import (
	"fmt"
	"os"
	"regexp"
)

// envRef matches "{{ env.VAR }}" with flexible internal whitespace.
var envRef = regexp.MustCompile(`\{\{\s*env\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ErrEnvironmentMissing is returned by SubstituteEnv when a referenced
// environment variable is not set in the process environment.
type ErrEnvironmentMissing struct {
	Variable string
}

func (e *ErrEnvironmentMissing) Error() string {
	return fmt.Sprintf("environment variable %q is referenced but not set", e.Variable)
}

// SubstituteEnv returns a copy of cfg with every "{{ env.VAR }}" occurrence
// in the prompt and context values replaced by the process environment's
// value for VAR. It is a pure function over the input config: it performs
// no I/O beyond reading the environment, and it must run once at load time
// so that a missing variable surfaces before the child process is spawned,
// never mid-execution.
func SubstituteEnv(cfg *Config) (*Config, error) {
	out := *cfg
	out.Task = cfg.Task

	prompt, err := substituteString(cfg.Task.Prompt)
	if err != nil {
		return nil, err
	}
	out.Task.Prompt = prompt

	if cfg.Task.Context != nil {
		ctx := make(map[string]string, len(cfg.Task.Context))
		for k, v := range cfg.Task.Context {
			sv, err := substituteString(v)
			if err != nil {
				return nil, err
			}
			ctx[k] = sv
		}
		out.Task.Context = ctx
	}

	return &out, nil
}

func substituteString(s string) (string, error) {
	var firstErr error
	result := envRef.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := envRef.FindStringSubmatch(match)
		name := sub[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			firstErr = &ErrEnvironmentMissing{Variable: name}
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
