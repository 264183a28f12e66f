/*
Package callflow defines and executes voice-agent call flows.

A flow is a directed graph of typed nodes (conversation, function, logic
split, transfer, ending, ...). The engine validates flows before they are
stored and drives each call turn by turn: it speaks node content, extracts
variables from the caller's replies, fires webhooks once their required
variables are bound, and resolves the next node deterministically.

# Collaborators

Natural-language work stays outside the engine. A ports.Judge decides whether
a transition condition holds, and a ports.Extractor pulls variable values from
the transcript. Both are injected:

	eng, err := callflow.New(repo,
		callflow.WithJudge(myJudge),
		callflow.WithExtractor(myExtractor),
	)

	res, err := eng.StartCall(ctx, "support-agent")
	for _, action := range res.Actions {
		// SPEAK, REQUEST_INPUT, TRANSFER_CALL, END_CALL, ...
	}
	res, err = eng.Respond(ctx, res.CallID, domain.Input{Text: "I need a refund"})

Package judge and package extract provide deterministic implementations for
tests and simulations.

# Persistence

Flows live behind ports.FlowRepository and call snapshots behind
ports.StateStore. Memory, file, Redis and SQLite adapters are provided under
pkg/adapters.
*/
package callflow
