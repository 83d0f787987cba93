package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWalletCmd создаёт группу команд для кошельков.
func NewWalletCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet operations",
	}

	var req DistributeRequest

	distribute := &cobra.Command{
		Use:   "distribute WALLET_ID",
		Short: "Fund new wallets from a source wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.Distribute(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Distribution queued: %s", resp.JobID))
			out.Print([]string{"JOB_ID", "QUEUE"}, [][]string{{resp.JobID, resp.Queue}}, resp)
			return nil
		},
	}

	distribute.Flags().IntVar(&req.Count, "count", 0, "Number of wallets to create (1-20)")
	distribute.Flags().StringVar(&req.CampaignID, "campaign-id", "", "Attach new wallets to a campaign")
	distribute.Flags().StringVar(&req.UserID, "user-id", "", "Owner of new wallets (defaults to source owner)")
	distribute.MarkFlagRequired("count")

	cmd.AddCommand(distribute)
	return cmd
}
