package hamsg

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/frobware/go-pppring"
)

const (
	msgStart = ">>>\n"
	msgEnd   = "<<<\n"
)

// MaxSize bounds an encoded message, framing included. It is also the
// reader's receive buffer size.
const MaxSize = 4096

// Encode renders m in wire form. Keys may not be empty or contain '='
// or newlines; values may not contain newlines.
func Encode(m *Message) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(msgStart)
	for _, k := range m.keys {
		if err := writeField(&b, k, m.values[k]); err != nil {
			return nil, err
		}
	}
	b.WriteString(msgEnd)
	if b.Len() > MaxSize {
		return nil, fmt.Errorf("message is %d bytes, limit %d", b.Len(), MaxSize)
	}
	return b.Bytes(), nil
}

func writeField(b *bytes.Buffer, k, v string) error {
	if k == "" || strings.ContainsAny(k, "=\n") {
		return fmt.Errorf("invalid field name %q", k)
	}
	if strings.ContainsRune(v, '\n') {
		return fmt.Errorf("field %s: value contains newline", k)
	}
	b.WriteString(k)
	b.WriteByte('=')
	b.WriteString(v)
	b.WriteByte('\n')
	return nil
}

// Decode parses wire data. Trailing NUL bytes are ignored. Errors wrap
// pppring.ErrMalformedMessage.
func Decode(data []byte) (*Message, error) {
	s := string(bytes.TrimRight(data, "\x00"))
	if !strings.HasPrefix(s, msgStart) {
		return nil, fmt.Errorf("%w: missing start marker", pppring.ErrMalformedMessage)
	}
	body, ok := strings.CutSuffix(s[len(msgStart):], msgEnd)
	if !ok {
		return nil, fmt.Errorf("%w: missing end marker", pppring.ErrMalformedMessage)
	}

	m := New()
	if body == "" {
		return m, nil
	}
	for _, line := range strings.Split(strings.TrimSuffix(body, "\n"), "\n") {
		k, v, found := strings.Cut(line, "=")
		if !found || k == "" {
			return nil, fmt.Errorf("%w: bad field %q", pppring.ErrMalformedMessage, line)
		}
		m.Set(k, v)
	}
	return m, nil
}
