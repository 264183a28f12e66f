package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize bounds one caller utterance in bytes.
const DefaultMaxInputSize = 4096

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
	ErrInvalidDigit  = errors.New("digit must be one of 0-9, * or #")
)

// Sanitize enforces the size limit, rejects invalid UTF-8 and strips control
// characters other than newline, tab and carriage return. A limit <= 0 uses DefaultMaxInputSize.
func (in Input) Sanitize(limit int) (Input, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(in.Text) > limit {
		return Input{}, fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(in.Text), limit)
	}
	if !utf8.ValidString(in.Text) {
		return Input{}, ErrInvalidUTF8
	}
	if in.Digit != "" && (len(in.Digit) != 1 || !strings.Contains("0123456789*#", in.Digit)) {
		return Input{}, fmt.Errorf("%w: %q", ErrInvalidDigit, in.Digit)
	}

	if strings.IndexFunc(in.Text, unsafeControl) < 0 {
		return in, nil
	}
	var b strings.Builder
	b.Grow(len(in.Text))
	for _, r := range in.Text {
		if !unsafeControl(r) {
			b.WriteRune(r)
		}
	}
	in.Text = b.String()
	return in, nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
