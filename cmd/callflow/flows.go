package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ringwire/callflow/internal/config"
)

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Manage flows in the configured storage",
}

var flowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents with a stored flow",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, storage, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer storage.Close()
		defer engine.Close()

		agents, err := engine.ListAgents(cmd.Context())
		if err != nil {
			return err
		}
		for _, a := range agents {
			fmt.Fprintln(cmd.OutOrStdout(), a)
		}
		return nil
	},
}

var flowsPutCmd = &cobra.Command{
	Use:   "put <agent> <flow-file>",
	Short: "Validate a flow file and store it for an agent",
	Long:  `Replaces the agent's flow. Calls already in progress keep the flow they started with.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flow, err := readFlowFile(args[1])
		if err != nil {
			return err
		}
		engine, storage, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer storage.Close()
		defer engine.Close()

		if err := engine.SaveFlow(cmd.Context(), args[0], flow); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored flow for %s (%d nodes, %s storage)\n", args[0], len(flow.Nodes), cfg.Storage.Driver)
		return nil
	},
}

var flowsGetCmd = &cobra.Command{
	Use:   "get <agent>",
	Short: "Print an agent's stored flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		storage, err := config.OpenStorage(cmd.Context(), cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer storage.Close()

		flow, err := storage.Flows.GetFlow(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var out []byte
		switch format {
		case "yaml":
			out, err = yaml.Marshal(flow)
		case "json":
			out, err = json.MarshalIndent(flow, "", "  ")
			out = append(out, '\n')
		default:
			return fmt.Errorf("unknown format %q (want yaml or json)", format)
		}
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(flowsCmd)
	flowsCmd.AddCommand(flowsListCmd, flowsPutCmd, flowsGetCmd)
	flowsGetCmd.Flags().StringP("format", "o", "yaml", "output format: yaml or json")
}
