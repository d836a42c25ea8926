package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show workflow runs or one run's steps",
	Long: `Without arguments, lists all runs in submission order. With a
workflow ID, shows the run's steps and their states.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false,
		"print raw JSON")
}

func runStatus(_ *cobra.Command, args []string) error {
	client := newAPIClient()

	if len(args) == 0 {
		var runs []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Status string `json:"status"`
			Steps  int    `json:"steps"`
		}
		if err := client.get("/api/v1/workflows", &runs); err != nil {
			return err
		}
		if statusJSON {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println("no workflows")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%-36s  %-9s  %2d steps  %s\n", r.ID, r.Status, r.Steps, r.Name)
		}
		return nil
	}

	var run struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
		Steps  []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Node   string `json:"node"`
			Action string `json:"action"`
			Status string `json:"status"`
		} `json:"steps"`
	}
	if err := client.get("/api/v1/workflows/"+args[0], &run); err != nil {
		return err
	}
	if statusJSON {
		return printJSON(run)
	}

	fmt.Printf("%s (%s) status=%s\n", run.ID, run.Name, run.Status)
	if run.Error != "" {
		fmt.Printf("error: %s\n", run.Error)
	}
	for i, st := range run.Steps {
		fmt.Printf("  %2d. %-9s  %s %s on %s\n", i+1, st.Status, st.Name, st.Action, st.Node)
	}
	return nil
}
