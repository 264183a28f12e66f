package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ringwire/callflow/internal/config"
	"github.com/ringwire/callflow/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [flow-file]",
	Short: "Export the flow as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of a flow file or a stored agent flow.
With --call, the diagram highlights the nodes that call visited and where it is now.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agentID, _ := cmd.Flags().GetString("agent")
		callID, _ := cmd.Flags().GetString("call")

		var overlay *graph.Overlay
		if callID != "" {
			storage, err := config.OpenStorage(ctx, cfg.Storage, logger)
			if err != nil {
				return err
			}
			state, err := storage.Calls.Load(ctx, callID)
			storage.Close()
			if err != nil {
				return fmt.Errorf("load call %s: %w", callID, err)
			}
			if agentID == "" && len(args) == 0 {
				agentID = state.AgentID
			}
			overlay = graph.OverlayFor(state)
		}

		flow, _, err := loadFlow(ctx, args, agentID)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(flow, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("agent", "", "render the stored flow of this agent")
	graphCmd.Flags().String("call", "", "highlight the path of a stored call")
}
