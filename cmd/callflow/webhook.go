package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ringwire/callflow"
	"github.com/ringwire/callflow/internal/validator"
	"github.com/ringwire/callflow/pkg/adapters/memory"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/webhook"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook-test",
	Short: "Send a webhook the way a function node would",
	Long: `Renders the URL, headers and body with the given variables and sends the request.
The body may be a {{placeholder}} template or a JSON Schema whose properties are
filled from the variables. Prints status, duration and the parsed response.`,
	Example: `  callflow webhook-test --url https://shop.example.com/orders/{{order_id}} --var order_id=A-17
  callflow webhook-test --url https://hooks.example.com --method POST \
    --body '{"type":"object","properties":{"order_id":{"type":"string"}},"required":["order_id"]}' \
    --var order_id=A-17`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		method, _ := cmd.Flags().GetString("method")
		body, _ := cmd.Flags().GetString("body")
		headers, _ := cmd.Flags().GetStringToString("header")
		pairs, _ := cmd.Flags().GetStringToString("var")
		timeout, _ := cmd.Flags().GetInt("timeout")

		wh := domain.WebhookConfig{
			URL:            url,
			Method:         strings.ToUpper(method),
			Headers:        headers,
			BodyTemplate:   body,
			TimeoutSeconds: timeout,
		}
		if err := validator.CheckWebhook(wh); err != nil {
			return err
		}

		engine, err := callflow.New(memory.NewRepository(), engineOptions()...)
		if err != nil {
			return err
		}
		defer engine.Close()

		res, err := engine.TestWebhook(cmd.Context(), wh, parseVars(pairs))
		var missing *webhook.MissingPropertiesError
		if errors.As(err, &missing) {
			return fmt.Errorf("not sent: %w", err)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if res.Success {
			fmt.Fprintf(out, "%d OK in %s\n", res.StatusCode, res.Duration)
		} else {
			fmt.Fprintf(out, "FAILED (status %d) in %s: %s\n", res.StatusCode, res.Duration, res.Error)
		}
		if res.Response != nil {
			pretty, _ := json.MarshalIndent(res.Response, "", "  ")
			fmt.Fprintln(out, string(pretty))
		}
		if !res.Success {
			return errors.New("webhook failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.Flags().String("url", "", "request URL, may contain {{placeholders}}")
	webhookCmd.Flags().StringP("method", "X", "GET", "HTTP method")
	webhookCmd.Flags().String("body", "", "body template or JSON Schema")
	webhookCmd.Flags().StringToStringP("header", "H", nil, "request header: name=value (repeatable)")
	webhookCmd.Flags().StringToString("var", nil, "variable: name=value, JSON values keep their type (repeatable)")
	webhookCmd.Flags().Int("timeout", 0, "timeout in seconds (default from config)")
	_ = webhookCmd.MarkFlagRequired("url")
}
