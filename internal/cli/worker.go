package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/dbflow/internal/domain"
	"github.com/shaiso/dbflow/internal/mq"
)

// NewWorkerCmd создаёт команду "worker" с подкомандами.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Inspect workers and report their health",
	}

	cmd.AddCommand(
		newWorkerListCmd(clientFn, outputFn),
		newWorkerShowCmd(clientFn, outputFn),
		newWorkerHealthCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkerListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			workers, err := clientFn().ListWorkers()
			if err != nil {
				return err
			}

			headers := []string{"TYPE", "HEALTH", "CAPABILITIES", "UPDATED", "MESSAGE"}
			rows := make([][]string, len(workers))
			for i, w := range workers {
				rows[i] = []string{
					w.Type,
					w.Health,
					dashIfEmpty(strings.Join(w.Capabilities, ",")),
					w.HealthUpdatedAt,
					dashIfEmpty(w.HealthMessage),
				}
			}

			outputFn().Print(headers, rows, workers)
			return nil
		},
	}
}

func newWorkerShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <type>",
		Short: "Show worker details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := clientFn().GetWorker(strings.ToUpper(args[0]))
			if err != nil {
				return err
			}

			outputFn().Detail([][2]string{
				{"Type", w.Type},
				{"Health", w.Health},
				{"Message", dashIfEmpty(w.HealthMessage)},
				{"Capabilities", dashIfEmpty(strings.Join(w.Capabilities, ", "))},
				{"Health updated", w.HealthUpdatedAt},
				{"Registered", w.RegisteredAt},
			}, w)
			return nil
		},
	}
}

func newWorkerHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var message string
	var amqpURL string

	cmd := &cobra.Command{
		Use:   "health <type> <HEALTHY|DEGRADED|CRITICAL>",
		Short: "Report worker health",
		Long: "Report worker health through the API, or publish the report\n" +
			"to the workers.health queue when --amqp-url is set.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workerType := strings.ToUpper(args[0])
			health := strings.ToUpper(args[1])

			var err error
			if amqpURL != "" {
				err = publishHealth(cmd.Context(), amqpURL, workerType, health, message)
			} else {
				err = clientFn().ReportHealth(workerType, ReportHealthRequest{
					Health:  health,
					Message: message,
				})
			}
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Reported %s as %s", workerType, health))
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "Health message")
	cmd.Flags().StringVar(&amqpURL, "amqp-url", "", "Publish via RabbitMQ instead of the API")

	return cmd
}

// publishHealth отправляет отчёт о здоровье в RabbitMQ.
func publishHealth(ctx context.Context, amqpURL, workerType, health, message string) error {
	h, err := domain.ParseHealth(health)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := mq.NewConnection(mq.ConnectionConfig{URL: amqpURL})
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	publisher := mq.NewPublisher(conn, "dbflow-cli", nil)
	return publisher.PublishHealthReport(ctx, mq.HealthPayload{
		WorkerType: domain.WorkerType(workerType),
		Health:     h,
		Message:    message,
		At:         time.Now(),
	})
}
