package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ringwire/callflow"
	"github.com/ringwire/callflow/internal/config"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/extract"
	"github.com/ringwire/callflow/pkg/judge"
	"github.com/ringwire/callflow/pkg/webhook"
)

func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

// readFlowFile loads a JSON or YAML flow document.
func readFlowFile(path string) (*domain.Flow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	flow, err := domain.ParseFlow(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return flow, nil
}

// engineOptions wires the configured runtime bounds, webhook invoker and the
// built-in deterministic judge and extractor.
func engineOptions() []callflow.Option {
	return []callflow.Option{
		callflow.WithLogger(logger),
		callflow.WithJudge(judge.NewExpr()),
		callflow.WithExtractor(extract.NewPattern(nil)),
		callflow.WithInvoker(webhook.New(
			webhook.WithLogger(logger),
			webhook.WithDefaultTimeout(cfg.Webhook.DefaultTimeoutSeconds),
		)),
		callflow.WithMaxUnresolvedTurns(cfg.Runtime.MaxUnresolvedTurns),
		callflow.WithMaxChainedTransitions(cfg.Runtime.MaxChainedTransitions),
		callflow.WithMaxInputSize(cfg.Runtime.MaxInputSize),
	}
}

// openEngine builds an engine over the configured storage. The caller closes both.
func openEngine(ctx context.Context, opts ...callflow.Option) (*callflow.Engine, *config.Storage, error) {
	storage, err := config.OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}

	all := append(engineOptions(), callflow.WithStateStore(storage.Calls))
	if storage.Locker != nil {
		all = append(all, callflow.WithLocker(storage.Locker))
	}
	all = append(all, opts...)

	eng, err := callflow.New(storage.Flows, all...)
	if err != nil {
		storage.Close()
		return nil, nil, err
	}
	return eng, storage, nil
}

// loadFlow reads a flow from a file argument or, when agentID is set, from storage.
func loadFlow(ctx context.Context, args []string, agentID string) (*domain.Flow, string, error) {
	if agentID == "" {
		if len(args) == 0 {
			return nil, "", fmt.Errorf("a flow file or --agent is required")
		}
		flow, err := readFlowFile(args[0])
		return flow, agentFromPath(args[0]), err
	}

	storage, err := config.OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, "", err
	}
	defer storage.Close()
	flow, err := storage.Flows.GetFlow(ctx, agentID)
	return flow, agentID, err
}

// agentFromPath names a file-loaded flow after its file, e.g. support.yaml -> support.
func agentFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parseVars turns key=value flags into variables. Values that parse as JSON keep their type.
func parseVars(pairs map[string]string) map[string]any {
	vars := make(map[string]any, len(pairs))
	for k, raw := range pairs {
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err == nil {
			vars[k] = val
			continue
		}
		vars[k] = raw
	}
	return vars
}
