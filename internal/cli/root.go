// Copyright 2025 The Flowsmith Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// globalFlags holds persistent flag values shared by all subcommands.
type globalFlags struct {
	addr       string
	jsonOutput bool
}

// NewRootCommand creates the root Cobra command for flowsmith.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "flowsmith",
		Short: "Flowsmith - workflow compiler and deployer",
		Long: `Flowsmith compiles reusable workflow templates into concrete automation
workflows and deploys them to a remote execution engine via the
flowsmithd daemon.

Run 'flowsmith templates list' to see the available templates.
Run 'flowsmith workflow create' to deploy a workflow from a template.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.addr, "addr", "", "Daemon address (default: $FLOWSMITH_ADDR or http://127.0.0.1:8714)")
	cmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Output in JSON format")

	cmd.AddCommand(newTemplatesCommand(flags))
	cmd.AddCommand(newWorkflowCommand(flags))
	cmd.AddCommand(newVersionCommand(flags))

	return cmd
}

// client builds an API client from the persistent flags.
func (f *globalFlags) client() (*Client, error) {
	return NewClient(f.addr)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// HandleExitError prints the error and exits non-zero.
func HandleExitError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// newVersionCommand creates the version command.
func newVersionCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":    version,
				"commit":     commit,
				"build_date": buildDate,
			}

			// Best effort: report the daemon's version too when reachable.
			if c, err := flags.client(); err == nil {
				var remote map[string]string
				if err := c.get(cmd.Context(), "/v1/version", &remote); err == nil {
					info["daemon_version"] = remote["version"]
				}
			}

			if flags.jsonOutput {
				return printJSON(info)
			}
			fmt.Printf("flowsmith %s (commit: %s, built: %s)\n", version, commit, buildDate)
			if dv, ok := info["daemon_version"]; ok {
				fmt.Printf("flowsmithd %s\n", dv)
			}
			return nil
		},
	}
}
