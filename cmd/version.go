package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version defines the application version (defined at compile time).
	Version = ""

	// Commit defines the application commit hash (defined at compile time).
	Commit = ""
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
}

func getVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print binary version information",
		RunE: func(_ *cobra.Command, _ []string) error {
			bz, err := json.Marshal(versionInfo{
				Version: Version,
				Commit:  Commit,
				Go:      fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
			})
			if err != nil {
				return err
			}

			fmt.Println(string(bz))
			return nil
		},
	}
}

func userAgent() string {
	if Version == "" {
		return "oracle-router"
	}
	return "oracle-router/" + Version
}
