package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewOperationCmd создаёт команду "operation" с подкомандами.
func NewOperationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operation",
		Aliases: []string{"op"},
		Short:   "Submit database operations",
	}

	cmd.AddCommand(
		newOperationSubmitCmd(clientFn, outputFn),
		newOperationTemplatesCmd(clientFn, outputFn),
	)

	return cmd
}

func newOperationSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var priority string
	var params []string
	var wait time.Duration
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "submit <kind>",
		Short: "Submit an operation (QUERY, MIGRATION, BACKUP, ...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}

			req := SubmitOperationRequest{
				Kind:     strings.ToUpper(args[0]),
				Priority: strings.ToUpper(priority),
				Params:   parsed,
			}

			resp, err := clientFn().SubmitOperation(req, SubmitOpts{
				Wait:           wait,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}

			out := outputFn()
			if resp.Result == nil {
				printPlanSummary(out, &resp.Plan, resp)
				out.Success(fmt.Sprintf("Plan %s accepted", resp.Plan.PlanID))
				return nil
			}

			printPlanResult(out, resp.Result, resp)
			out.Success(fmt.Sprintf("Plan %s finished: %s", resp.Result.PlanID, resp.Result.Status))
			return nil
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "", "Priority: CRITICAL, HIGH, MEDIUM, LOW, BACKGROUND")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Operation parameter KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait for the result up to this duration")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Request ID for deduplication")

	return cmd
}

func newOperationTemplatesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List plan templates per operation kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := clientFn().ListTemplates()
			if err != nil {
				return err
			}

			headers := []string{"KIND", "STEP", "WORKER", "DEPENDS ON"}
			var rows [][]string
			for _, t := range templates {
				for _, s := range t.Steps {
					rows = append(rows, []string{
						t.Kind,
						s.Name,
						s.WorkerType,
						dashIfEmpty(strings.Join(s.DependsOn, ",")),
					})
				}
			}

			outputFn().Print(headers, rows, templates)
			return nil
		},
	}
}

// parseParams разбирает KEY=VALUE. Значение, которое читается как JSON
// (число, bool, массив), передаётся как есть, остальное — строкой.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid param %q: expected KEY=VALUE", p)
		}

		var value any
		if err := json.Unmarshal([]byte(parts[1]), &value); err != nil {
			value = parts[1]
		}
		params[parts[0]] = value
	}
	return params, nil
}

func printPlanSummary(out *Output, plan *PlanSummary, jsonData any) {
	headers := []string{"STEP", "WORKER", "PRIORITY", "DEPENDS ON"}
	rows := make([][]string, len(plan.Tasks))
	for i, t := range plan.Tasks {
		rows[i] = []string{
			t.Name,
			t.WorkerType,
			t.Priority,
			dashIfEmpty(strings.Join(t.DependsOn, ",")),
		}
	}
	out.Print(headers, rows, jsonData)
}

func printPlanResult(out *Output, result *PlanResult, jsonData any) {
	headers := []string{"STEP", "WORKER", "STATUS", "RETRIES", "DURATION", "ERROR"}
	rows := make([][]string, len(result.Tasks))
	for i, t := range result.Tasks {
		errMsg := t.Error
		if t.Reason != "" {
			errMsg = t.Reason + ": " + errMsg
		}
		rows[i] = []string{
			t.Name,
			t.WorkerType,
			t.Status,
			fmt.Sprintf("%d", t.RetryCount),
			formatMs(t.DurationMs),
			dashIfEmpty(errMsg),
		}
	}
	out.Print(headers, rows, jsonData)
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
