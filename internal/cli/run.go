package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для просмотра runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect campaign runs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show run details and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().GetRun(args[0])
			if err != nil {
				return err
			}

			s := run.Summary
			outputFn().Detail([]Field{
				{"ID", run.ID},
				{"Campaign", run.CampaignID},
				{"Status", run.Status},
				{"Started", run.StartedAt},
				{"Ended", run.EndedAt},
				{"Jobs", strconv.Itoa(s.Total)},
				{"Succeeded", strconv.Itoa(s.Succeeded)},
				{"Failed", strconv.Itoa(s.Failed)},
				{"Queued", strconv.Itoa(s.Queued)},
				{"Running", strconv.Itoa(s.Running)},
				{"Success rate", strconv.FormatFloat(s.SuccessRate, 'f', 1, 64) + "%"},
				{"Mean latency", strconv.FormatFloat(s.MeanLatencyMs, 'f', 0, 64) + "ms"},
			}, run)
			return nil
		},
	})

	return cmd
}

// NewJobCmd создаёт группу команд для просмотра jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show job status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := clientFn().GetJob(args[0])
			if err != nil {
				return err
			}

			var result string
			if len(job.Result) > 0 {
				result = string(job.Result)
			}

			outputFn().Detail([]Field{
				{"ID", job.ID},
				{"Queue", job.Queue},
				{"Type", job.Type},
				{"Campaign", job.CampaignID},
				{"Run", job.RunID},
				{"Status", job.Status},
				{"Attempts", strconv.Itoa(job.Attempts)},
				{"Progress", strconv.Itoa(job.Progress) + "%"},
				{"Error", job.Error},
				{"Result", result},
				{"Updated", job.UpdatedAt},
			}, job)
			return nil
		},
	})

	return cmd
}
