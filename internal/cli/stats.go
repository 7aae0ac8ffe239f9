package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// NewStatsCmd создаёт команду "stats".
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show orchestrator and worker summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := clientFn().Stats()
			if err != nil {
				return err
			}

			health := make([]string, 0, len(stats.Workers))
			for h, n := range stats.Workers {
				health = append(health, fmt.Sprintf("%s=%d", h, n))
			}
			sort.Strings(health)

			outputFn().Detail([][2]string{
				{"Running", fmt.Sprintf("%t", stats.Running)},
				{"Pool size", fmt.Sprintf("%d", stats.PoolSize)},
				{"Active plans", fmt.Sprintf("%d", stats.ActivePlans)},
				{"Workers", dashIfEmpty(strings.Join(health, " "))},
				{"Kinds", strings.Join(stats.Kinds, ", ")},
			}, stats)
			return nil
		},
	}
}
