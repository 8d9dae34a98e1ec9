package hamsg

import (
	"bytes"
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/minio/sha256-simd"
)

const authMethod = "sha256"

// Authenticator signs and verifies messages with a shared key.
type Authenticator struct {
	key []byte
}

// NewAuthenticator returns an Authenticator for key.
func NewAuthenticator(key string) (*Authenticator, error) {
	if key == "" {
		return nil, errors.New("empty authentication key")
	}
	return &Authenticator{key: []byte(key)}, nil
}

// Sign replaces any existing signature on m with a fresh one. Anything
// that changes a field must re-sign.
func (a *Authenticator) Sign(m *Message) {
	m.Del(FieldAuth)
	m.Set(FieldAuth, authMethod+" "+hex.EncodeToString(a.mac(m)))
}

// Verify reports whether m carries a valid signature.
func (a *Authenticator) Verify(m *Message) bool {
	v, ok := m.Get(FieldAuth)
	if !ok {
		return false
	}
	method, digest, ok := strings.Cut(v, " ")
	if !ok || method != authMethod {
		return false
	}
	want, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	return hmac.Equal(want, a.mac(m))
}

// mac covers every field except the signature, in order.
func (a *Authenticator) mac(m *Message) []byte {
	var b bytes.Buffer
	for _, k := range m.keys {
		if k == FieldAuth {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m.values[k])
		b.WriteByte('\n')
	}
	h := hmac.New(sha256.New, a.key)
	h.Write(b.Bytes())
	return h.Sum(nil)
}
