package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ringwire/callflow/internal/validator"
	"github.com/ringwire/callflow/pkg/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow-file]",
	Short: "Check a flow for authoring defects",
	Long: `Checks a flow document (JSON or YAML) or a stored agent flow and reports every
violation: missing or duplicate start nodes, dangling targets, terminal nodes
with transitions, invalid webhooks and logic splits. Unreachable nodes are
reported as warnings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		flow, _, err := loadFlow(cmd.Context(), args, agentID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if err := validator.Validate(flow); err != nil {
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				return err
			}
			fmt.Fprintf(out, "Flow is invalid (%d problems):\n", len(verr.Violations))
			for _, v := range verr.Violations {
				fmt.Fprintf(out, "  - %s\n", v)
			}
			return domain.ErrInvalidFlow
		}

		for _, id := range validator.Unreachable(flow) {
			fmt.Fprintf(out, "warning: node '%s' is unreachable from start\n", id)
		}
		fmt.Fprintf(out, "Flow is valid! ✅ (%d nodes)\n", len(flow.Nodes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("agent", "", "validate the stored flow of this agent instead of a file")
}
