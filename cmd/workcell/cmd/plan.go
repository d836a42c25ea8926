package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <source> <destination>",
	Short: "Plan a transfer between two locations",
	Long: `Ask the daemon for the cheapest transfer path between two locations.

Prints the composed plan. With --submit, the plan is enqueued as a
workflow immediately.

Examples:
  workcell plan deck_a3 incubator_slot_2
  workcell plan deck_a3 incubator_slot_2 --resource plate-042 --submit`,
	Args: cobra.ExactArgs(2),
	RunE: runPlan,
}

var (
	planResource string
	planSubmit   bool
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVar(&planResource, "resource", "",
		"resource ID to thread through the transfer")
	planCmd.Flags().BoolVar(&planSubmit, "submit", false,
		"submit the composed plan as a workflow")
}

func runPlan(_ *cobra.Command, args []string) error {
	req := map[string]interface{}{
		"source":      args[0],
		"destination": args[1],
		"resource_id": planResource,
		"submit":      planSubmit,
	}

	var resp struct {
		Legs []struct {
			Source      string  `json:"source"`
			Destination string  `json:"destination"`
			Template    string  `json:"template"`
			Node        string  `json:"node"`
			Cost        float64 `json:"cost"`
		} `json:"legs"`
		TotalCost  float64 `json:"total_cost"`
		WorkflowID string  `json:"workflow_id,omitempty"`
	}
	if err := newAPIClient().post("/api/v1/transfers/plan", req, &resp); err != nil {
		return err
	}

	for i, leg := range resp.Legs {
		fmt.Printf("%d. %s -> %s via %s (%s, cost %.1f)\n",
			i+1, leg.Source, leg.Destination, leg.Node, leg.Template, leg.Cost)
	}
	fmt.Printf("total cost: %.1f\n", resp.TotalCost)
	if resp.WorkflowID != "" {
		fmt.Printf("submitted as workflow %s\n", resp.WorkflowID)
	}
	return nil
}
