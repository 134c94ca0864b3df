// Package envsettings loads env.json, the persisted holder of the LLM CLI
// path and other environment-derived settings consumed by the executor,
// cron installer, and watcher when no environment-variable override is
// present.
package envsettings

import (
	"encoding/json"
	"os"

	"github.com/clodputer/clodputer/internal/statedir"
)

// EnvLLMCLIPath overrides the LLM CLI binary path for this process.
const EnvLLMCLIPath = "CLODPUTER_LLM_CLI_PATH"

// EnvLLMCLIExtraArgs supplies extra arguments appended to every LLM CLI
// invocation, space-separated.
const EnvLLMCLIExtraArgs = "CLODPUTER_LLM_CLI_EXTRA_ARGS"

const (
	defaultMaxCPUPercent = 90.0
	defaultMaxMemPercent = 90.0
)

// ResourceGate holds the optional resource-gate thresholds, with
// defaults exposed here as the configurable surface.
type ResourceGate struct {
	MaxCPUPercent float64 `json:"max_cpu_percent"`
	MaxMemPercent float64 `json:"max_mem_percent"`
}

// Settings is the env.json document.
type Settings struct {
	LLMCLIPath   string       `json:"llm_cli_path,omitempty"`
	ResourceGate ResourceGate `json:"resource_gate"`
}

// Load reads env.json from the state directory, defaulting every field
// that is absent. A missing file is not an error: it yields defaults.
func Load(root string) (*Settings, error) {
	s := &Settings{ResourceGate: ResourceGate{MaxCPUPercent: defaultMaxCPUPercent, MaxMemPercent: defaultMaxMemPercent}}

	data, err := os.ReadFile(statedir.EnvSettingsPath(root)) //nolint:gosec // state-dir controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.ResourceGate.MaxCPUPercent == 0 {
		s.ResourceGate.MaxCPUPercent = defaultMaxCPUPercent
	}
	if s.ResourceGate.MaxMemPercent == 0 {
		s.ResourceGate.MaxMemPercent = defaultMaxMemPercent
	}
	return s, nil
}

// Save persists s to env.json atomically.
func Save(root string, s *Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return statedir.WriteFileAtomic(statedir.EnvSettingsPath(root), data, 0600)
}

// ResolveLLMCLIPath applies a fixed precedence: environment variable,
// then env.json, then a platform default on PATH.
func ResolveLLMCLIPath(root string) (string, error) {
	if p := os.Getenv(EnvLLMCLIPath); p != "" {
		return p, nil
	}
	s, err := Load(root)
	if err != nil {
		return "", err
	}
	if s.LLMCLIPath != "" {
		return s.LLMCLIPath, nil
	}
	return "claude", nil
}

// ExtraArgs returns the extra CLI arguments appended to every invocation,
// from the environment override, split on whitespace.
func ExtraArgs() []string {
	raw := os.Getenv(EnvLLMCLIExtraArgs)
	if raw == "" {
		return nil
	}
	var args []string
	cur := make([]byte, 0, len(raw))
	flush := func() {
		if len(cur) > 0 {
			args = append(args, string(cur))
			cur = cur[:0]
		}
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] == ' ' || raw[i] == '\t' {
			flush()
			continue
		}
		cur = append(cur, raw[i])
	}
	flush()
	return args
}
