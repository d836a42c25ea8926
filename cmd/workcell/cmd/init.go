package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/labwire/workcell/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration and layout",
	Long: `Create .workcell.yaml with the default configuration and, unless one
exists, a skeleton workcell.yaml layout to fill in with your nodes,
locations and transfer templates.`,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false,
		"overwrite existing files")
}

const skeletonLayout = `# Workcell layout: instrument nodes, named locations and transfer
# templates. Locations are addressable by a node when they carry a
# representation keyed by that node's name.

nodes:
  - id: arm-1
    name: arm
    url: http://localhost:9101

locations:
  - id: deck_a1
    name: Deck A1
    representations:
      arm: { joints: [0, 0, 0, 0, 0, 0] }
  - id: deck_a2
    name: Deck A2
    representations:
      arm: { joints: [10, 0, 0, 0, 0, 0] }

templates:
  - name: arm_move
    node_name: arm
    cost: 1.0
    steps:
      - node: arm
        action: pick_and_place
`

func runInit(_ *cobra.Command, _ []string) error {
	if err := writeIfAbsent(".workcell.yaml", config.DefaultConfigYAML); err != nil {
		return err
	}
	if err := writeIfAbsent("workcell.yaml", skeletonLayout); err != nil {
		return err
	}
	return nil
}

func writeIfAbsent(path, content string) error {
	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Printf("%s already exists, skipping (use --force to overwrite)\n", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
