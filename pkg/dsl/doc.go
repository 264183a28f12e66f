/*
Package dsl builds call flows in Go instead of JSON or YAML documents.

It is a fluent builder over the domain types, useful for tests, generated flows
and IDE completion. Build validates the result exactly as SaveFlow does.

	b := dsl.New()

	b.Start("start").
		Say("Thanks for calling. How can I help?").
		Goal("Find out why the customer is calling").
		Branch("the caller wants a refund", "refund").
		Branch("the caller asks for a human", "human")

	b.CollectInput("refund").
		Prompt("Ask for the order number").
		Extract(dsl.Required("order_id", "the order number")).
		Go("bye")

	b.CallTransfer("human", "+15550100").Say("Connecting you now.")
	b.End("bye").Say("Your refund is on its way. Goodbye!")

	flow, err := b.Build()
*/
package dsl
