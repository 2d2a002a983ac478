package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// Version is the release string. Builds overwrite it with:
//
//	go build -ldflags "-X github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/cmd.Version=v0.3.0"
var Version = "v0.3.0-dev"

// BuildTime is optionally injected next to Version with
// -X .../cmd.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ).
var BuildTime = ""

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version"`
	GOOS      string `json:"goos"`
	GOARCH    string `json:"goarch"`
	BuildTime string `json:"build_time,omitempty"`
}

// vcsRevision returns the short commit hash stamped by the go tool, if any.
func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return s.Value[:12]
		}
	}
	return ""
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the imfs version and build information",
	Long: `Print the imfs version string and build metadata.

Default output is plain text. Use --format json or jsonl for structured output.`,
	Example: `  imfs version
  imfs version --format json | jq .version`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version:   Version,
			Commit:    vcsRevision(),
			GoVersion: runtime.Version(),
			GOOS:      runtime.GOOS,
			GOARCH:    runtime.GOARCH,
			BuildTime: BuildTime,
		}
		out := cmd.OutOrStdout()

		switch globalFlags.Format {
		case "json":
			b, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", b)
		case "jsonl":
			b, err := json.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", b)
		default:
			fmt.Fprintf(out, "imfs    %s\n", info.Version)
			if info.Commit != "" {
				fmt.Fprintf(out, "commit  %s\n", info.Commit)
			}
			fmt.Fprintf(out, "go      %s\n", info.GoVersion)
			fmt.Fprintf(out, "os      %s/%s\n", info.GOOS, info.GOARCH)
			if info.BuildTime != "" {
				fmt.Fprintf(out, "built   %s\n", info.BuildTime)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
