package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// Build variables, set with -ldflags "-X github.com/killallgit/audiolingu-api/cmd.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo is what `version --json` prints
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Display the build of the Audiolingu API: version, git commit, build time
and the Go runtime it was built with.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("short", "s", false, "print just the version number")
	versionCmd.Flags().Bool("json", false, "print build information as JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	info := currentBuildInfo()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	if short, _ := cmd.Flags().GetBool("short"); short {
		fmt.Fprintf(out, "v%s\n", info.Version)
		return nil
	}

	rule := strings.Repeat("-", 40)
	fmt.Fprintln(out, "Audiolingu API")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "Version:      v%s\n", info.Version)
	fmt.Fprintf(out, "Git Commit:   %s\n", info.GitCommit)
	fmt.Fprintf(out, "Build Time:   %s\n", info.BuildTime)
	fmt.Fprintf(out, "Go Version:   %s\n", info.GoVersion)
	fmt.Fprintf(out, "OS/Arch:      %s\n", info.Platform)
	fmt.Fprintln(out, rule)
	return nil
}
