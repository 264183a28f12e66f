package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/dsl"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample flow to start from",
	Long: `Writes an order-status flow (default: flow.yaml) that exercises conversation
branching, variable collection, a logic split and a digit menu. It runs as-is
with "callflow simulate".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "flow.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		flow, err := sampleFlow()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(flow)
		if err != nil {
			return err
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d nodes). Try: callflow simulate %s\n", path, len(flow.Nodes), path)
		return nil
	},
}

func sampleFlow() (*domain.Flow, error) {
	orderID := dsl.Required("order_id", "the order number, at least four digits")
	orderID.ExtractionHint = `\b(\d{4,})\b`
	orderID.RepromptType = domain.RepromptStatic
	orderID.RepromptText = "Sorry, I need the order number. It has at least four digits."

	b := dsl.New()
	b.Start("start").
		Say("Thanks for calling Acme. Is this about an order, or would you like to talk to someone?").
		Goal("Find out whether the caller wants order status or a person").
		Branch("lower(user_message) contains 'order'", "collect_order").
		Branch("lower(user_message) contains 'someone' || lower(user_message) contains 'person'", "human")
	b.CollectInput("collect_order").
		Label("Collect order number").
		Say("Sure. What is your order number?").
		Goal("Get the order number").
		Extract(orderID).
		Branch("order_id != nil", "route_order", "order_id")
	b.LogicSplit("route_order").
		When("order_id", domain.ValueString, domain.OpStartsWith, "9", "priority_menu").
		Default("status")
	b.PressDigit("priority_menu").
		Say("Order {{order_id}} is a priority order. Press 1 to hear its status or 2 to speak with the priority desk.").
		Digit("1", "status").
		Digit("2", "human")
	b.End("status").
		Say("Order {{order_id}} has shipped and should arrive within two days. Goodbye!")
	b.CallTransfer("human", "+15550100").
		Say("Connecting you with a member of our team.")
	return b.Build()
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
}
