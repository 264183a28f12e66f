package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ringwire/callflow/internal/presentation/graph"
	"github.com/ringwire/callflow/internal/presentation/tui"
)

var describeCmd = &cobra.Command{
	Use:   "describe [flow-file]",
	Short: "Describe a flow in readable markdown",
	Long: `Prints a node table and a section per node (speech, goal, webhook, variables).
On a terminal the markdown is rendered with colors; otherwise it is printed raw.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		flow, name, err := loadFlow(cmd.Context(), args, agentID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		render, err := tui.NewRenderer(out)
		if err != nil {
			return err
		}
		text, err := render(graph.Describe(name, flow))
		if err != nil {
			return err
		}
		fmt.Fprint(out, text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().String("agent", "", "describe the stored flow of this agent")
}
