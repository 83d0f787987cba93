package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewDLQCmd создаёт группу команд для dead letters.
func NewDLQCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered jobs",
	}

	cmd.AddCommand(
		newDLQListCmd(clientFn, outputFn),
		newDLQReplayCmd(clientFn, outputFn),
	)

	return cmd
}

func newDLQListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list QUEUE",
		Short: "List dead letters of a queue (trades, distributions, webhooks)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			letters, err := client.ListDeadLetters(args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"JOB_ID", "TYPE", "ATTEMPTS", "REASON", "ERROR", "FAILED_AT"}
			rows := make([][]string, len(letters))
			for i, d := range letters {
				rows[i] = []string{
					d.JobID,
					d.Type,
					strconv.Itoa(d.Attempts) + "/" + strconv.Itoa(d.MaxAttempts),
					d.Reason,
					d.Error,
					d.FailedAt,
				}
			}

			out.Print(headers, rows, letters)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newDLQReplayCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay QUEUE",
		Short: "Re-enqueue dead letters with attempts reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.ReplayDeadLetters(args[0], limit)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Replayed %d job(s), %d failed", len(resp.Replayed), len(resp.Failed)))
			if len(resp.Failed) > 0 {
				out.Error("failed to replay: " + fmt.Sprint(resp.Failed))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of dead letters to replay")

	return cmd
}
