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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowsmith/flowsmith/internal/store"
)

// newWorkflowCommand creates the workflow command group.
func newWorkflowCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage deployed workflows",
	}
	cmd.AddCommand(newWorkflowCreateCommand(flags))
	cmd.AddCommand(newWorkflowListCommand(flags))
	cmd.AddCommand(newWorkflowShowCommand(flags))
	cmd.AddCommand(newWorkflowUpdateCommand(flags))
	cmd.AddCommand(newWorkflowActivateCommand(flags, true))
	cmd.AddCommand(newWorkflowActivateCommand(flags, false))
	cmd.AddCommand(newWorkflowDeleteCommand(flags))
	cmd.AddCommand(newWorkflowTriggerCommand(flags))
	cmd.AddCommand(newWorkflowExecutionsCommand(flags))
	return cmd
}

// parseInputs parses repeated --input key=value pairs. Values parse as JSON
// when possible so numbers and booleans keep their type; everything else is
// a string.
func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, expected key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		inputs[key] = parsed
	}
	return inputs, nil
}

func newWorkflowCreateCommand(flags *globalFlags) *cobra.Command {
	var (
		userID string
		name   string
		inputs []string
	)
	cmd := &cobra.Command{
		Use:   "create <template-id>",
		Short: "Compile a template and deploy it as a workflow",
		Example: `  # Deploy an API poller for a user
  flowsmith workflow create api_poller --user user-123 \
      --input api_url=https://api.example.com/items \
      --input interval=30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			body := map[string]any{
				"template_id": args[0],
				"user_id":     userID,
				"inputs":      parsed,
			}
			if name != "" {
				body["name"] = name
			}

			var w store.Workflow
			if err := c.post(cmd.Context(), "/v1/workflows", body, &w); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(&w)
			}
			fmt.Printf("Created workflow %s (%s)\n", w.ID, w.Name)
			if w.WebhookURL != "" {
				fmt.Printf("Webhook: %s\n", w.WebhookURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Owner user ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "Instance name (default: generated)")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Template input as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newWorkflowListCommand(flags *globalFlags) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployed workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			path := "/v1/workflows"
			if owner != "" {
				path += "?owner=" + owner
			}
			var resp struct {
				Workflows []*store.Workflow `json:"workflows"`
			}
			if err := c.get(cmd.Context(), path, &resp); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(resp.Workflows)
			}

			if len(resp.Workflows) == 0 {
				fmt.Println("No workflows deployed.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTEMPLATE\tOWNER\tSTATUS")
			for _, wf := range resp.Workflows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", wf.ID, wf.Name, wf.TemplateID, wf.OwnerID, wf.Status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner user ID")
	return cmd
}

func newWorkflowShowCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show a workflow's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			var w store.Workflow
			if err := c.get(cmd.Context(), "/v1/workflows/"+args[0], &w); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(&w)
			}

			fmt.Printf("ID:        %s\n", w.ID)
			fmt.Printf("Name:      %s\n", w.Name)
			fmt.Printf("Template:  %s\n", w.TemplateID)
			fmt.Printf("Owner:     %s\n", w.OwnerID)
			fmt.Printf("Status:    %s\n", w.Status)
			fmt.Printf("Remote ID: %s\n", w.RemoteID)
			if w.WebhookURL != "" {
				fmt.Printf("Webhook:   %s\n", w.WebhookURL)
			}
			fmt.Printf("Created:   %s\n", w.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newWorkflowUpdateCommand(flags *globalFlags) *cobra.Command {
	var inputs []string
	cmd := &cobra.Command{
		Use:   "update <workflow-id>",
		Short: "Recompile a workflow with changed inputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}
			if len(parsed) == 0 {
				return fmt.Errorf("at least one --input is required")
			}

			var w store.Workflow
			body := map[string]any{"inputs": parsed}
			if err := c.patch(cmd.Context(), "/v1/workflows/"+args[0], body, &w); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(&w)
			}
			fmt.Printf("Updated workflow %s\n", w.ID)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Changed input as key=value (repeatable)")
	return cmd
}

func newWorkflowActivateCommand(flags *globalFlags, active bool) *cobra.Command {
	use, short := "activate <workflow-id>", "Activate a paused workflow"
	if !active {
		use, short = "pause <workflow-id>", "Pause an active workflow"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			var w store.Workflow
			body := map[string]bool{"active": active}
			if err := c.post(cmd.Context(), "/v1/workflows/"+args[0]+"/activate", body, &w); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(&w)
			}
			fmt.Printf("Workflow %s is now %s\n", w.ID, w.Status)
			return nil
		},
	}
}

func newWorkflowDeleteCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <workflow-id>",
		Short: "Delete a workflow locally and from the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			if err := c.delete(cmd.Context(), "/v1/workflows/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted workflow %s\n", args[0])
			return nil
		},
	}
}

func newWorkflowTriggerCommand(flags *globalFlags) *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "trigger <workflow-id>",
		Short: "Trigger a workflow's webhook manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			var body any = map[string]any{}
			if payload != "" {
				var parsed any
				if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
				body = parsed
			}

			var resp struct {
				Result any `json:"result"`
			}
			if err := c.post(cmd.Context(), "/v1/workflows/"+args[0]+"/trigger", body, &resp); err != nil {
				return err
			}
			return printJSON(resp.Result)
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload for the webhook")
	return cmd
}

func newWorkflowExecutionsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions <workflow-id>",
		Short: "List recent executions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			var resp struct {
				Executions []struct {
					ID         string `json:"id"`
					WorkflowID string `json:"workflow_id"`
					Status     string `json:"status"`
					Finished   bool   `json:"finished"`
				} `json:"executions"`
			}
			if err := c.get(cmd.Context(), "/v1/workflows/"+args[0]+"/executions", &resp); err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(resp.Executions)
			}

			if len(resp.Executions) == 0 {
				fmt.Println("No executions yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tFINISHED")
			for _, e := range resp.Executions {
				fmt.Fprintf(w, "%s\t%s\t%t\n", e.ID, e.Status, e.Finished)
			}
			return w.Flush()
		},
	}
	return cmd
}
