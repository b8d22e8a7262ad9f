package qrtoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/campushub/events-api/pkg/errors"
)

const version = "v1"

// Payload is the signed content embedded in a registration QR code.
type Payload struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	UserID         string `json:"user_id"`
	IssuedAt       int64  `json:"issued_at"`
	Nonce          string `json:"nonce"`
}

// Codec signs and verifies registration tokens with a server-held secret.
// The token is presented by end users as a scannable image, so decode treats
// it as untrusted input and fails closed.
type Codec struct {
	secret []byte
}

// NewCodec constructs a codec for the given secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// NewNonce returns a random nonce for a freshly issued token.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Encode produces a token string for the payload. The output is
// deterministic for a fixed payload (including nonce).
func (c *Codec) Encode(payload Payload) (string, error) {
	if len(c.secret) == 0 {
		return "", fmt.Errorf("signing secret missing")
	}
	if payload.RegistrationID == "" || payload.EventID == "" || payload.UserID == "" {
		return "", fmt.Errorf("registration, event, and user IDs required")
	}
	if payload.IssuedAt == 0 {
		payload.IssuedAt = time.Now().UTC().Unix()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	signature := c.sign(encoded)

	return strings.Join([]string{version, encoded, signature}, "."), nil
}

// Decode parses and verifies a raw token. Structural failures yield
// MalformedToken; a signature that the server cannot recompute yields
// IntegrityCheckFailed.
func (c *Codec) Decode(raw string) (*Payload, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 || parts[0] != version {
		return nil, appErrors.Clone(appErrors.ErrMalformedToken, "")
	}
	encoded := parts[1]
	signature := parts[2]

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedToken.Code, appErrors.ErrMalformedToken.Status, appErrors.ErrMalformedToken.Message)
	}

	expected := c.sign(encoded)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, appErrors.Clone(appErrors.ErrIntegrityCheckFailed, "")
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedToken.Code, appErrors.ErrMalformedToken.Status, appErrors.ErrMalformedToken.Message)
	}
	if payload.RegistrationID == "" || payload.EventID == "" {
		return nil, appErrors.Clone(appErrors.ErrMalformedToken, "token payload incomplete")
	}

	return &payload, nil
}

func (c *Codec) sign(encoded string) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(version + "|" + encoded))
	return hex.EncodeToString(mac.Sum(nil))
}
