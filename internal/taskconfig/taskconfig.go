// Package taskconfig loads, validates, and normalizes task definitions.
package taskconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Priority is the queue priority class a task is enqueued under.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// TriggerType identifies which variant of Trigger is populated.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerCron      TriggerType = "cron"
	TriggerFileWatch TriggerType = "file_watch"
)

// FileEvent is the kind of filesystem change a file_watch trigger reacts to.
type FileEvent string

const (
	EventCreated  FileEvent = "created"
	EventModified FileEvent = "modified"
	EventDeleted  FileEvent = "deleted"
)

// PermissionMode controls how the LLM CLI is allowed to apply edits.
type PermissionMode string

const (
	PermissionAcceptEdits PermissionMode = "accept_edits"
	PermissionRejectEdits PermissionMode = "reject_edits"
	PermissionPrompt      PermissionMode = "prompt"
)

// Backoff selects the retry delay growth function.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffFixed       Backoff = "fixed"
)

// Trigger is a tagged variant: exactly one of {manual, cron, file_watch}.
// Deserialization routes by Type; the fields of the other variants are left
// zero-valued rather than modeled as separate types, matching how small a
// surface each variant has.
type Trigger struct {
	Type TriggerType `yaml:"type"`

	// cron
	Expression string `yaml:"expression,omitempty"`
	Timezone   string `yaml:"timezone,omitempty"`

	// file_watch
	Path       string    `yaml:"path,omitempty"`
	Pattern    string    `yaml:"pattern,omitempty"`
	Event      FileEvent `yaml:"event,omitempty"`
	DebounceMS int       `yaml:"debounce_ms,omitempty"`
}

// Task is the prompt + tool-permission + timeout block of a task definition.
type Task struct {
	Prompt          string            `yaml:"prompt"`
	AllowedTools    []string          `yaml:"allowed_tools,omitempty"`
	DisallowedTools []string          `yaml:"disallowed_tools,omitempty"`
	PermissionMode  PermissionMode    `yaml:"permission_mode,omitempty"`
	TimeoutSeconds  int               `yaml:"timeout_seconds,omitempty"`
	Context         map[string]string `yaml:"context,omitempty"`
	MCPConfigPath   string            `yaml:"mcp_config_path,omitempty"`
}

// Retry is the task's retry policy.
type Retry struct {
	Enabled             bool    `yaml:"enabled"`
	MaxAttempts         int     `yaml:"max_attempts"`
	Backoff             Backoff `yaml:"backoff"`
	InitialDelaySeconds int     `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int     `yaml:"max_delay_seconds"`
}

// Action is a single on_success/on_failure step.
type Action struct {
	Log    string `yaml:"log,omitempty"`
	Notify bool   `yaml:"notify,omitempty"`
}

// Config is a fully parsed, validated task definition.
type Config struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Enabled     *bool     `yaml:"enabled,omitempty"`
	Priority    Priority  `yaml:"priority,omitempty"`
	Trigger     Trigger   `yaml:"trigger"`
	Task        Task      `yaml:"task"`
	Retry       Retry     `yaml:"retry,omitempty"`
	OnSuccess   []Action  `yaml:"on_success,omitempty"`
	OnFailure   []Action  `yaml:"on_failure,omitempty"`

	// SourcePath is the file the config was loaded from. Not part of the
	// on-disk document.
	SourcePath string `yaml:"-"`
}

// IsEnabled reports whether the task should run. Defaults to true when the
// field is absent.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// EffectivePriority returns c.Priority, defaulting to PriorityNormal.
func (c *Config) EffectivePriority() Priority {
	if c.Priority == "" {
		return PriorityNormal
	}
	return c.Priority
}

const defaultTimeoutSeconds = 3600

// builtinTools is the small closed set of tool identifiers Clodputer itself
// recognizes. Anything else must use the external-tool prefix convention.
var builtinTools = map[string]bool{
	"Read": true, "Write": true, "Edit": true, "Bash": true,
	"Glob": true, "Grep": true, "WebSearch": true, "WebFetch": true,
	"Task": true, "TodoWrite": true, "NotebookEdit": true,
}

// externalToolPrefix is the namespacing convention for tools provided by an
// external MCP server rather than built into the LLM CLI.
const externalToolPrefix = "mcp__"

// ErrConfigInvalid wraps an aggregated set of field-level validation errors.
type ErrConfigInvalid struct {
	Path   string
	Fields []string
}

func (e *ErrConfigInvalid) Error() string {
	return fmt.Sprintf("config invalid (%s):\n  - %s", e.Path, strings.Join(e.Fields, "\n  - "))
}

// ErrNotFound is returned by Load when no file for the given task name exists.
var ErrNotFound = fmt.Errorf("task not found")

// Load reads and validates the task definition named by name from
// <root>/tasks/<name>.yaml (or .yml).
func Load(root, name string) (*Config, error) {
	path, err := resolvePath(root, name)
	if err != nil {
		return nil, err
	}
	return loadFile(path)
}

func resolvePath(root, name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(root, "tasks", name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled, within state dir
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ErrConfigInvalid{Path: path, Fields: []string{fmt.Sprintf("parse error: %v", err)}}
	}
	cfg.SourcePath = path

	if name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)); cfg.Name == "" {
		cfg.Name = name
	}

	if fields := validate(&cfg); len(fields) > 0 {
		return nil, &ErrConfigInvalid{Path: path, Fields: fields}
	}
	return &cfg, nil
}

// LoadAll loads every task definition under <root>/tasks. Unlike Load, a
// per-file error does not abort the scan: diagnostics needs every error
// alongside every successfully parsed config.
func LoadAll(root string) ([]*Config, []error) {
	dir := filepath.Join(root, "tasks")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{err}
	}

	var configs []*Config
	var errs []error
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, n := range names {
		cfg, err := loadFile(filepath.Join(dir, n))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, errs
}

// validate performs schema and cross-field validation, returning a list of
// human-readable field errors (empty if the config is valid).
func validate(cfg *Config) []string {
	var fields []string

	if cfg.Name == "" {
		fields = append(fields, "name: required")
	} else if !filesystemSafeName.MatchString(cfg.Name) {
		fields = append(fields, fmt.Sprintf("name: %q must contain only alphanumeric characters, dots, hyphens, and underscores", cfg.Name))
	}

	if cfg.Priority != "" && cfg.Priority != PriorityNormal && cfg.Priority != PriorityHigh {
		fields = append(fields, fmt.Sprintf("priority: %q must be one of: normal, high", cfg.Priority))
	}

	fields = append(fields, validateTrigger(&cfg.Trigger)...)
	fields = append(fields, validateTask(&cfg.Task)...)
	fields = append(fields, validateRetry(&cfg.Retry)...)
	fields = append(fields, validateActions("on_success", cfg.OnSuccess)...)
	fields = append(fields, validateActions("on_failure", cfg.OnFailure)...)

	return fields
}

var filesystemSafeName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validateTrigger(t *Trigger) []string {
	var fields []string
	switch t.Type {
	case TriggerManual:
		// no further fields
	case TriggerCron:
		if t.Expression == "" {
			fields = append(fields, "trigger.expression: required for cron trigger")
		}
	case TriggerFileWatch:
		if t.Path == "" {
			fields = append(fields, "trigger.path: required for file_watch trigger")
		}
		if t.Pattern == "" {
			fields = append(fields, "trigger.pattern: required for file_watch trigger")
		}
		switch t.Event {
		case EventCreated, EventModified, EventDeleted:
		default:
			fields = append(fields, fmt.Sprintf("trigger.event: %q must be one of: created, modified, deleted", t.Event))
		}
		if t.DebounceMS < 0 {
			fields = append(fields, "trigger.debounce_ms: must be >= 0")
		}
	default:
		fields = append(fields, fmt.Sprintf("trigger.type: %q must be one of: manual, cron, file_watch", t.Type))
	}
	return fields
}

func validateTask(t *Task) []string {
	var fields []string
	if t.Prompt == "" {
		fields = append(fields, "task.prompt: required")
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = defaultTimeoutSeconds
	} else if t.TimeoutSeconds < 0 {
		fields = append(fields, "task.timeout_seconds: must be positive")
	}
	switch t.PermissionMode {
	case "", PermissionAcceptEdits, PermissionRejectEdits, PermissionPrompt:
	default:
		fields = append(fields, fmt.Sprintf("task.permission_mode: %q must be one of: accept_edits, reject_edits, prompt", t.PermissionMode))
	}
	for _, name := range t.AllowedTools {
		if err := validateToolName(name); err != nil {
			fields = append(fields, fmt.Sprintf("task.allowed_tools: %v", err))
		}
	}
	for _, name := range t.DisallowedTools {
		if err := validateToolName(name); err != nil {
			fields = append(fields, fmt.Sprintf("task.disallowed_tools: %v", err))
		}
	}
	return fields
}

// validateToolName rejects unknown tool identifiers, distinguishing the
// built-in closed set from the external mcp__-prefixed namespace.
func validateToolName(name string) error {
	if builtinTools[name] {
		return nil
	}
	if strings.HasPrefix(name, externalToolPrefix) {
		return nil
	}
	return fmt.Errorf("unknown tool %q (built-in tools are %s; external tools must be prefixed %q)",
		name, builtinToolList(), externalToolPrefix)
}

func builtinToolList() string {
	names := make([]string, 0, len(builtinTools))
	for n := range builtinTools {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func validateRetry(r *Retry) []string {
	var fields []string
	if !r.Enabled {
		return fields
	}
	if r.MaxAttempts < 1 {
		fields = append(fields, "retry.max_attempts: must be >= 1 when retry is enabled")
	}
	switch r.Backoff {
	case BackoffExponential, BackoffFixed:
	default:
		fields = append(fields, fmt.Sprintf("retry.backoff: %q must be one of: exponential, fixed", r.Backoff))
	}
	if r.InitialDelaySeconds < 0 {
		fields = append(fields, "retry.initial_delay_seconds: must be >= 0")
	}
	if r.MaxDelaySeconds < 0 {
		fields = append(fields, "retry.max_delay_seconds: must be >= 0")
	}
	return fields
}

func validateActions(field string, actions []Action) []string {
	var fields []string
	for i, a := range actions {
		if a.Log == "" && !a.Notify {
			fields = append(fields, fmt.Sprintf("%s[%d]: must set log or notify", field, i))
		}
	}
	return fields
}
