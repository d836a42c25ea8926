package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var submitCmd = &cobra.Command{
	Use:   "submit <workflow-file>",
	Short: "Submit a workflow definition to the daemon",
	Long: `Submit a workflow definition (YAML or JSON) for execution.

The file holds a workflow definition: a name and an ordered list of
steps, each naming a node, an action and optional args, locations,
conditions and locks.

Examples:
  workcell submit assay.yaml
  workcell submit assay.yaml --experiment EXP-421 --user jdoe`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var (
	submitExperiment string
	submitUser       string
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitExperiment, "experiment", "",
		"experiment ID to record on the run")
	submitCmd.Flags().StringVar(&submitUser, "user", "",
		"user ID to record on the run")
}

func runSubmit(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	// YAML is a superset of JSON, so one decoder covers both.
	var definition map[string]interface{}
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	req := map[string]interface{}{
		"definition": definition,
		"owner": map[string]string{
			"experiment_id": submitExperiment,
			"user_id":       submitUser,
		},
	}

	var resp struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := newAPIClient().post("/api/v1/workflows", req, &resp); err != nil {
		return err
	}

	fmt.Printf("submitted %s (%s) status=%s\n", resp.ID, resp.Name, resp.Status)
	return nil
}
