package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <workflow-id>",
	Short: "Pause a run at the next step boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return controlWorkflow(args[0], "pause")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow-id>",
	Short: "Resume a paused run",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return controlWorkflow(args[0], "resume")
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "Cancel a run immediately",
	Long: `Cancel a run. The run goes CANCELLED at once; an instrument already
executing a step may still finish its current physical operation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return controlWorkflow(args[0], "cancel")
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cancelCmd)
}

func controlWorkflow(id, action string) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := newAPIClient().post("/api/v1/workflows/"+id+"/"+action, nil, &resp); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", id, resp.Status)
	return nil
}
