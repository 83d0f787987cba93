package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewCampaignCmd создаёт группу команд управления кампаниями.
func NewCampaignCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Control campaign execution",
	}

	cmd.AddCommand(
		newCampaignStartCmd(clientFn, outputFn),
		newCampaignActionCmd("pause", "Pause a campaign and drop its queued jobs", (*Client).PauseCampaign, clientFn, outputFn),
		newCampaignActionCmd("resume", "Resume a paused campaign", (*Client).ResumeCampaign, clientFn, outputFn),
		newCampaignActionCmd("stop", "Stop a campaign permanently", (*Client).StopCampaign, clientFn, outputFn),
		newCampaignRunsCmd(clientFn, outputFn),
		newCampaignEventsCmd(clientFn, outputFn),
	)

	return cmd
}

func newCampaignStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "start CAMPAIGN_ID",
		Short: "Start a draft campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.StartCampaign(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Campaign started: %s", resp.CampaignID))
			if resp.Run != nil {
				out.Print(runHeaders, [][]string{runRow(*resp.Run)}, resp.Run)
			}
			return nil
		},
	}
}

func newCampaignActionCmd(action, short string, fn func(*Client, string) (*CommandResponse, error), clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   action + " CAMPAIGN_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			resp, err := fn(clientFn(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Campaign %s: %s", resp.CampaignID, resp.Status))
			return nil
		},
	}
}

func newCampaignRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs CAMPAIGN_ID",
		Short: "List campaign runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListCampaignRuns(args[0], limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newCampaignEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var since time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "events CAMPAIGN_ID",
		Short: "Show recent campaign events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			events, err := client.ListCampaignEvents(args[0], from, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(events))
			for i, e := range events {
				rows[i] = []string{str(e["timestamp"]), str(e["type"]), str(e["status"]), str(e["jobId"])}
			}

			out.Print([]string{"TIME", "TYPE", "STATUS", "JOB_ID"}, rows, events)
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Only events newer than this (e.g. 2m)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

var runHeaders = []string{"ID", "STATUS", "TOTAL", "SUCCEEDED", "FAILED", "SUCCESS_RATE", "STARTED"}

func runRow(r RunResponse) []string {
	return []string{
		r.ID,
		r.Status,
		strconv.Itoa(r.Summary.Total),
		strconv.Itoa(r.Summary.Succeeded),
		strconv.Itoa(r.Summary.Failed),
		strconv.FormatFloat(r.Summary.SuccessRate, 'f', 1, 64) + "%",
		r.StartedAt,
	}
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
