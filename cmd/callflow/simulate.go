package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ringwire/callflow"
	"github.com/ringwire/callflow/internal/presentation/tui"
	"github.com/ringwire/callflow/internal/validator"
	"github.com/ringwire/callflow/pkg/adapters/memory"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/runner"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [flow-file]",
	Short: "Play a call against a flow from the console",
	Long: `Starts a call and reads the caller's turns from stdin, printing every action the
engine asks for. Conditions are evaluated as expressions over the caller's last
message and the bound variables (e.g. user_message contains 'refund'); variables
are extracted with their extraction hints as patterns.

Type "/press N" to send a key press. End the input (Ctrl+D) or press Ctrl+C to hang up.
With --json, each turn result is printed as one JSON line and each input line may be
{"text": ...} or {"digit": ...}.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		jsonMode, _ := cmd.Flags().GetBool("json")

		flow, name, err := loadFlow(cmd.Context(), args, agentID)
		if err != nil {
			return err
		}
		if err := validator.Validate(flow); err != nil {
			return err
		}
		repo, err := memory.NewRepositoryFromFlows(map[string]*domain.Flow{name: flow})
		if err != nil {
			return err
		}
		engine, err := callflow.New(repo, engineOptions()...)
		if err != nil {
			return err
		}
		defer engine.Close()

		var handler runner.IOHandler
		if jsonMode {
			h := runner.NewJSONHandler(cmd.InOrStdin(), cmd.OutOrStdout())
			h.MaxInputSize = cfg.Runtime.MaxInputSize
			handler = h
		} else {
			var opts []runner.TextHandlerOption
			if tui.IsTerminal(cmd.OutOrStdout()) {
				if render, err := tui.NewRenderer(cmd.OutOrStdout()); err == nil {
					opts = append(opts, runner.WithTextHandlerRenderer(render))
				}
			}
			h := runner.NewTextHandler(cmd.InOrStdin(), cmd.OutOrStdout(), opts...)
			h.MaxInputSize = cfg.Runtime.MaxInputSize
			handler = h
		}

		signals := runner.NewSignalManager(cmd.Context())
		defer signals.Stop()

		r := runner.New(engine, runner.WithHandler(handler), runner.WithLogger(logger))
		state, err := r.Run(signals.Context(), name)
		if state != nil && !jsonMode {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d utterances, %d nodes visited, outcome: %s\n",
				len(state.Transcript), len(state.History), outcome(state))
		}
		var deadlock *domain.ResolutionDeadlockError
		if errors.As(err, &deadlock) {
			return fmt.Errorf("flow defect: %w", err)
		}
		return err
	},
}

func outcome(state *domain.SessionState) string {
	if state.Outcome != "" {
		return state.Outcome
	}
	return string(state.Status)
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("agent", "", "simulate the stored flow of this agent instead of a file")
	simulateCmd.Flags().Bool("json", false, "JSON lines in and out")
}
