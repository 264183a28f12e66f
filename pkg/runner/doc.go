/*
Package runner drives a call from a terminal or a pipe, for simulating flows without telephony.

It plays the host role: it starts a call, presents each turn's actions through
an IOHandler, reads the caller's next input and submits it, until the call is
transferred or ends. Closing the input (EOF) or an interrupt hangs up.

# Key Components

  - Runner: the turn loop over a ports.CallService.
  - TextHandler: human-readable transcript with a "> " prompt. "/press N" sends a digit.
  - JSONHandler: one TurnResult per line out, one Input (or plain string) per line in.

# Usage

	r := runner.New(engine,
		runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)
	state, err := r.Run(ctx, "support")
*/
package runner
