// dbflow CLI — инструмент командной строки для запуска операций,
// просмотра планов и воркеров через HTTP API.
//
// Использование:
//
//	dbflow [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	operation  Запуск операций
//	plan       Просмотр и отмена планов
//	worker     Воркеры и их здоровье
//	stats      Сводка по серверу
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/dbflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "dbflow",
		Short:         "dbflow CLI — database workflow orchestration",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("DBFLOW_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewOperationCmd(clientFn, outputFn),
		cli.NewPlanCmd(clientFn, outputFn),
		cli.NewWorkerCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
