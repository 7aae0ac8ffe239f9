package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/planner"
)

// NewPlanCmd создаёт команду "plan" с подкомандами.
func NewPlanCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and cancel plans",
	}

	cmd.AddCommand(
		newPlanListCmd(clientFn, outputFn),
		newPlanShowCmd(clientFn, outputFn),
		newPlanCancelCmd(clientFn, outputFn),
		newPlanPreviewCmd(clientFn, outputFn),
	)

	return cmd
}

func newPlanListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListPlansOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Kind = strings.ToUpper(opts.Kind)
			opts.Status = strings.ToUpper(opts.Status)

			plans, err := clientFn().ListPlans(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "KIND", "PRIORITY", "STATUS", "TASKS", "STARTED", "ELAPSED"}
			rows := make([][]string, len(plans))
			for i, p := range plans {
				rows[i] = []string{
					p.PlanID,
					p.Kind,
					p.Priority,
					p.Status,
					fmt.Sprintf("%d/%d", p.Completed, p.TotalTasks),
					p.StartedAt,
					formatMs(p.ElapsedMs),
				}
			}

			outputFn().Print(headers, rows, plans)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "Filter by operation kind")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status: RUNNING, COMPLETED, FAILED, ...")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Max results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Offset")

	return cmd
}

func newPlanShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show plan result with per-task report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := clientFn().GetPlan(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			printPlanResult(out, result, result)
			if result.Error != "" {
				out.Error(result.Error)
			}
			return nil
		},
	}
}

func newPlanCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <plan-id>",
		Short: "Cancel a running plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().CancelPlan(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Plan %s cancelled", args[0]))
			return nil
		},
	}
}

func newPlanPreviewCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var priority string
	var params []string
	var offline bool

	cmd := &cobra.Command{
		Use:   "preview <kind>",
		Short: "Build a plan without executing it",
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

			var plan *PlanSummary
			if offline {
				plan, err = previewLocal(req)
			} else {
				plan, err = clientFn().PreviewOperation(req)
			}
			if err != nil {
				return err
			}

			printPlanSummary(outputFn(), plan, plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "", "Priority: CRITICAL, HIGH, MEDIUM, LOW, BACKGROUND")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Operation parameter KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Build the plan locally without the API server")

	return cmd
}

// previewLocal строит план встроенным планировщиком.
func previewLocal(req SubmitOperationRequest) (*PlanSummary, error) {
	kind, err := domain.ParseOperationKind(req.Kind)
	if err != nil {
		return nil, err
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	plan, err := planner.New(planner.Config{}).BuildPlan(domain.OperationRequest{
		Kind:     kind,
		Priority: priority,
		Params:   req.Params,
	})
	if err != nil {
		return nil, err
	}

	prefix := plan.ID.String() + "/"
	summary := &PlanSummary{
		PlanID:    plan.ID.String(),
		Kind:      plan.Kind.String(),
		Priority:  plan.Priority.String(),
		Tasks:     make([]TaskSummary, len(plan.Tasks)),
		CreatedAt: plan.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	for i, t := range plan.Tasks {
		deps := make([]string, len(t.DependsOn))
		for j, d := range t.DependsOn {
			deps[j] = strings.TrimPrefix(d, prefix)
		}
		summary.Tasks[i] = TaskSummary{
			Name:       t.Name,
			WorkerType: t.WorkerType.String(),
			Priority:   t.Priority.String(),
			DependsOn:  deps,
			Params:     t.DeclaredParams(),
		}
	}
	return summary, nil
}
