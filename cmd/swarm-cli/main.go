// Swarm CLI — инструмент командной строки для управления кампаниями,
// просмотра runs и jobs и работы с DLQ через HTTP API.
//
// Использование:
//
//	swarm [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	campaign  Жизненный цикл кампаний, runs и события
//	run       Просмотр runs
//	job       Просмотр jobs
//	wallet    Распределение SOL
//	dlq       Dead letters: просмотр и replay
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Swarm/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "swarm",
		Short:         "Swarm CLI — campaign trading engine control",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("SWARM_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewCampaignCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewWalletCmd(clientFn, outputFn),
		cli.NewDLQCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
