package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"socialops/domain/model"
)

// TransportStateCodec seals OAuthTransportState into a cookie value and opens it
// again. It is the only place the payload is parsed.
type TransportStateCodec struct {
	cipher *Cipher
	now    func() time.Time
}

func NewTransportStateCodec(c *Cipher) *TransportStateCodec {
	return &TransportStateCodec{cipher: c, now: time.Now}
}

// NewNonce returns 32 random bytes, hex encoded.
func NewNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (c *TransportStateCodec) Encode(s *model.OAuthTransportState) (string, error) {
	if s.State == "" || s.RedirectURI == "" {
		return "", errors.New("transport state requires nonce and redirect uri")
	}
	if s.IssuedAt.IsZero() {
		s.IssuedAt = c.now().UTC()
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return c.cipher.Encrypt(string(payload))
}

// Decode opens a cookie value. Anything other than a fresh, well-formed payload
// is an OAuthStateError, except cipher misconfiguration which propagates as is.
func (c *TransportStateCodec) Decode(cookie string) (*model.OAuthTransportState, error) {
	if cookie == "" {
		return nil, &model.OAuthStateError{Reason: "missing transport cookie"}
	}
	plain, err := c.cipher.Decrypt(cookie)
	if err != nil {
		var cfgErr *model.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &model.OAuthStateError{Reason: "transport cookie rejected"}
	}
	var s model.OAuthTransportState
	if err := json.Unmarshal([]byte(plain), &s); err != nil {
		return nil, &model.OAuthStateError{Reason: "malformed transport state"}
	}
	if s.State == "" || s.RedirectURI == "" || s.Platform == "" {
		return nil, &model.OAuthStateError{Reason: "incomplete transport state"}
	}
	if s.Expired(c.now()) {
		return nil, &model.OAuthStateError{Reason: "transport state expired"}
	}
	return &s, nil
}

// StatesEqual compares nonces in constant time.
func StatesEqual(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
