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
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowsmith/flowsmith/internal/template"
)

// newTemplatesCommand creates the templates command group.
func newTemplatesCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Browse available workflow templates",
	}
	cmd.AddCommand(newTemplatesListCommand(flags))
	cmd.AddCommand(newTemplatesShowCommand(flags))
	cmd.AddCommand(newTemplatesMatchCommand(flags))
	return cmd
}

func newTemplatesListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			var resp struct {
				Templates []*template.Template `json:"templates"`
			}
			if err := c.get(cmd.Context(), "/v1/templates", &resp); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(resp.Templates)
			}

			if len(resp.Templates) == 0 {
				fmt.Println("No templates available.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tDESCRIPTION")
			for _, t := range resp.Templates {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Category, truncate(t.Description, 60))
			}
			return w.Flush()
		},
	}
}

func newTemplatesShowCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <template-id>",
		Short: "Show a template's details and input fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			var t template.Template
			if err := c.get(cmd.Context(), "/v1/templates/"+args[0], &t); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(&t)
			}

			fmt.Printf("%s (%s)\n", t.Name, t.ID)
			if t.Description != "" {
				fmt.Printf("  %s\n", t.Description)
			}
			if len(t.Keywords) > 0 {
				fmt.Printf("  Keywords: %s\n", strings.Join(t.Keywords, ", "))
			}
			fmt.Println()

			printFields := func(title string, fields []template.FieldSpec) {
				if len(fields) == 0 {
					return
				}
				fmt.Printf("%s:\n", title)
				for _, f := range fields {
					line := fmt.Sprintf("  %s (%s)", f.Name, f.Type)
					if f.Default != nil {
						line += fmt.Sprintf(" [default: %v]", f.Default)
					}
					if len(f.Options) > 0 {
						opts := make([]string, 0, len(f.Options))
						for _, o := range f.Options {
							opts = append(opts, fmt.Sprintf("%v", o.Value))
						}
						line += fmt.Sprintf(" [options: %s]", strings.Join(opts, ", "))
					}
					fmt.Println(line)
				}
			}
			printFields("Required inputs", t.RequiredInputs)
			printFields("Optional inputs", t.OptionalInputs)
			return nil
		},
	}
}

func newTemplatesMatchCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "match <query>",
		Short: "Find templates matching a free-text query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			var resp struct {
				Matches []struct {
					Template *template.Template `json:"template"`
					Score    float64            `json:"score"`
				} `json:"matches"`
			}
			body := map[string]string{"query": strings.Join(args, " ")}
			if err := c.post(cmd.Context(), "/v1/templates/match", body, &resp); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(resp.Matches)
			}

			if len(resp.Matches) == 0 {
				fmt.Println("No matching templates.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tID\tNAME")
			for _, m := range resp.Matches {
				fmt.Fprintf(w, "%.1f\t%s\t%s\n", m.Score, m.Template.ID, m.Template.Name)
			}
			return w.Flush()
		},
	}
}

// truncate shortens s to at most n runes, appending an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
