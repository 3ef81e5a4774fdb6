package cmd

import (
	"bytes"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func withBuild(t *testing.T, version, commit, built string) {
	t.Helper()
	prevVersion, prevCommit, prevBuilt := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, built
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = prevVersion, prevCommit, prevBuilt
	})
}

func runVersionCmd(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCmd()
	versionCmd, _, err := root.Find([]string{"version"})
	if err != nil {
		t.Fatalf("Failed to find version command: %v", err)
	}
	// Flags live on the shared command between runs
	t.Cleanup(func() {
		_ = versionCmd.Flags().Set("short", "false")
		_ = versionCmd.Flags().Set("json", "false")
	})

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"version"}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	withBuild(t, "1.4.0", "3f9c2ab", "2026-10-01T08:00:00Z")
	out := runVersionCmd(t)

	for _, want := range []string{
		"Audiolingu API",
		"Version:      v1.4.0",
		"Git Commit:   3f9c2ab",
		"Build Time:   2026-10-01T08:00:00Z",
		"OS/Arch:      " + runtime.GOOS + "/" + runtime.GOARCH,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommandShort(t *testing.T) {
	withBuild(t, "1.4.0", "3f9c2ab", "now")
	if out := runVersionCmd(t, "--short"); out != "v1.4.0\n" {
		t.Errorf("short output = %q, want %q", out, "v1.4.0\n")
	}
}

func TestVersionCommandJSON(t *testing.T) {
	withBuild(t, "2.0.0-rc.1", "abc1234", "2026-10-02T10:30:00Z")

	var info BuildInfo
	if err := json.Unmarshal([]byte(runVersionCmd(t, "--json")), &info); err != nil {
		t.Fatalf("version --json is not JSON: %v", err)
	}
	want := BuildInfo{
		Version:   "2.0.0-rc.1",
		GitCommit: "abc1234",
		BuildTime: "2026-10-02T10:30:00Z",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info != want {
		t.Errorf("build info = %+v, want %+v", info, want)
	}
}

func TestVersionCommandRejectsArgs(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"version", "extra"})
	if err := root.Execute(); err == nil {
		t.Error("expected an error for unexpected arguments")
	}
}
