package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ringwire/callflow/pkg/domain"
)

// digitCommand prefixes a line that should be sent as a key press.
const digitCommand = "/press "

// TextHandler implements the human-readable transcript interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	// MaxInputSize bounds one line. Zero uses domain.DefaultMaxInputSize.
	MaxInputSize int

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// initPump moves blocking reads off the caller goroutine so Input can honour ctx.
func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

func (h *TextHandler) pump() {
	defer close(h.inputChan)
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				h.inputChan <- inputResult{err: err}
			}
			return
		}
	}
}

func (h *TextHandler) Output(_ context.Context, res *domain.TurnResult) error {
	for _, act := range res.Actions {
		line := h.describe(act)
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(h.Writer, line); err != nil {
			return err
		}
	}
	if res.Gated {
		fmt.Fprintf(h.Writer, "  (still need: %s)\n", strings.Join(res.Missing, ", "))
	}
	for _, wh := range res.Webhooks {
		fmt.Fprintf(h.Writer, "  (webhook %s: %s)\n", wh.URL, webhookSummary(wh))
	}
	return nil
}

func (h *TextHandler) describe(act domain.ActionRequest) string {
	switch p := act.Payload.(type) {
	case domain.Speech:
		return "agent: " + h.speech(p)
	case domain.Reprompt:
		return "agent: " + h.speech(domain.Speech{Text: p.Text, Verbatim: p.Verbatim})
	case domain.InputRequest:
		if p.Type == domain.InputDTMF {
			return fmt.Sprintf("  (waiting for a key press %v; type %sN)", p.Digits, digitCommand)
		}
		return ""
	case domain.SMS:
		return fmt.Sprintf("[sms to %s] %s", orDash(p.To), p.Message)
	case domain.CallTransfer:
		return h.withSpeech(p.Speech, fmt.Sprintf("[transfer to %s]", p.PhoneNumber))
	case domain.AgentTransfer:
		return h.withSpeech(p.Speech, fmt.Sprintf("[transfer to agent %s]", p.AgentID))
	case domain.EndCall:
		return h.withSpeech(p.Speech, fmt.Sprintf("[call ended: %s]", p.Reason))
	case string:
		if act.Type == domain.ActionGoalNudge {
			return "  (goal: " + p + ")"
		}
		return p
	}
	return ""
}

func (h *TextHandler) withSpeech(s *domain.Speech, line string) string {
	if s == nil || s.Text == "" {
		return line
	}
	return "agent: " + h.speech(*s) + "\n" + line
}

func (h *TextHandler) speech(s domain.Speech) string {
	text := s.Text
	if h.Renderer != nil {
		if rendered, err := h.Renderer(text); err == nil {
			text = strings.TrimSpace(rendered)
		}
	}
	if !s.Verbatim {
		return "<" + text + ">"
	}
	return text
}

func (h *TextHandler) Input(ctx context.Context) (domain.Input, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return domain.Input{}, ctx.Err()
		default:
			fmt.Fprint(h.Writer, "> ")
		}

		select {
		case <-ctx.Done():
			return domain.Input{}, ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return domain.Input{}, io.EOF
			}
			if res.err != nil {
				return domain.Input{}, res.err
			}

			in := parseLine(strings.TrimSpace(res.text))
			clean, err := in.Sanitize(h.MaxInputSize)
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

func (h *TextHandler) SystemOutput(_ context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "[system] %s\n", msg)
	return err
}

func parseLine(line string) domain.Input {
	if digit, ok := strings.CutPrefix(line, digitCommand); ok {
		return domain.Input{Digit: strings.TrimSpace(digit)}
	}
	return domain.Input{Text: line}
}

func webhookSummary(wh domain.WebhookOutcome) string {
	switch {
	case len(wh.Blocked) > 0:
		return "not sent, missing " + strings.Join(wh.Blocked, ", ")
	case wh.Async:
		return "sent asynchronously"
	case wh.Success:
		return fmt.Sprintf("ok %d", wh.StatusCode)
	case wh.Error != "":
		return "failed: " + wh.Error
	}
	return fmt.Sprintf("failed %d", wh.StatusCode)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
