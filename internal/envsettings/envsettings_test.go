package envsettings

import (
	"testing"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	root := t.TempDir()
	s, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if s.ResourceGate.MaxCPUPercent != defaultMaxCPUPercent {
		t.Errorf("MaxCPUPercent = %v, want default %v", s.ResourceGate.MaxCPUPercent, defaultMaxCPUPercent)
	}
	if s.ResourceGate.MaxMemPercent != defaultMaxMemPercent {
		t.Errorf("MaxMemPercent = %v, want default %v", s.ResourceGate.MaxMemPercent, defaultMaxMemPercent)
	}
	if s.LLMCLIPath != "" {
		t.Errorf("LLMCLIPath = %q, want empty", s.LLMCLIPath)
	}
}

func TestSaveLoad_RoundTrips(t *testing.T) {
	root := t.TempDir()
	s := &Settings{
		LLMCLIPath:   "/usr/local/bin/claude",
		ResourceGate: ResourceGate{MaxCPUPercent: 50, MaxMemPercent: 60},
	}
	if err := Save(root, s); err != nil {
		t.Fatal(err)
	}

	got, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if got.LLMCLIPath != s.LLMCLIPath {
		t.Errorf("LLMCLIPath = %q, want %q", got.LLMCLIPath, s.LLMCLIPath)
	}
	if got.ResourceGate != s.ResourceGate {
		t.Errorf("ResourceGate = %+v, want %+v", got.ResourceGate, s.ResourceGate)
	}
}

func TestResolveLLMCLIPath_EnvOverrideWins(t *testing.T) {
	root := t.TempDir()
	if err := Save(root, &Settings{LLMCLIPath: "/from/env.json"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvLLMCLIPath, "/from/env/var")

	got, err := ResolveLLMCLIPath(root)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/from/env/var" {
		t.Errorf("ResolveLLMCLIPath() = %q, want env override", got)
	}
}

func TestResolveLLMCLIPath_FallsBackToEnvSettingsThenDefault(t *testing.T) {
	root := t.TempDir()
	t.Setenv(EnvLLMCLIPath, "")

	got, err := ResolveLLMCLIPath(root)
	if err != nil {
		t.Fatal(err)
	}
	if got != "claude" {
		t.Errorf("ResolveLLMCLIPath() = %q, want platform default", got)
	}

	if err := Save(root, &Settings{LLMCLIPath: "/from/env.json"}); err != nil {
		t.Fatal(err)
	}
	got, err = ResolveLLMCLIPath(root)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/from/env.json" {
		t.Errorf("ResolveLLMCLIPath() = %q, want env.json value", got)
	}
}

func TestExtraArgs_SplitsOnWhitespace(t *testing.T) {
	t.Setenv(EnvLLMCLIExtraArgs, "  --verbose  --max-turns 4 ")
	got := ExtraArgs()
	want := []string{"--verbose", "--max-turns", "4"}
	if len(got) != len(want) {
		t.Fatalf("ExtraArgs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExtraArgs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtraArgs_EmptyWhenUnset(t *testing.T) {
	t.Setenv(EnvLLMCLIExtraArgs, "")
	if got := ExtraArgs(); got != nil {
		t.Errorf("ExtraArgs() = %v, want nil", got)
	}
}
