package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ringwire/callflow/pkg/domain"
)

// JSONHandler implements the IOHandler interface for JSON-Lines communication.
// Each turn result is written as one line. Each input line is either an Input
// object ({"text": ...} or {"digit": ...}), a JSON string, or plain text.
type JSONHandler struct {
	Reader  *bufio.Reader
	Encoder *json.Encoder

	// MaxInputSize bounds one line. Zero uses domain.DefaultMaxInputSize.
	MaxInputSize int
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Output(_ context.Context, res *domain.TurnResult) error {
	return h.Encoder.Encode(res)
}

func (h *JSONHandler) Input(_ context.Context) (domain.Input, error) {
	for {
		text, err := h.Reader.ReadString('\n')
		text = strings.TrimSpace(text)
		if text == "" {
			if err != nil {
				return domain.Input{}, err
			}
			continue
		}

		in := decodeInput(text)
		clean, serr := in.Sanitize(h.MaxInputSize)
		if serr != nil {
			return domain.Input{}, fmt.Errorf("invalid input line: %w", serr)
		}
		return clean, nil
	}
}

func decodeInput(text string) domain.Input {
	if strings.HasPrefix(text, "{") {
		var in domain.Input
		if err := json.Unmarshal([]byte(text), &in); err == nil {
			return in
		}
	}
	var s string
	if err := json.Unmarshal([]byte(text), &s); err == nil {
		return domain.Input{Text: s}
	}
	return domain.Input{Text: text}
}

// SystemOutput emits a {"system": msg} line.
func (h *JSONHandler) SystemOutput(_ context.Context, msg string) error {
	return h.Encoder.Encode(map[string]string{"system": msg})
}
