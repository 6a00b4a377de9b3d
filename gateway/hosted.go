package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
)

// Hosted is a redirect-based hosted-checkout provider. The buyer is sent to
// the provider's checkout URL with the intent details as query parameters;
// the provider later POSTs a JSON confirmation signed with HMAC-SHA256 over
// the raw body using the shared secret.
type Hosted struct {
	name        string
	checkoutURL string
	secret      []byte
}

var _ Provider = (*Hosted)(nil)

// NewHosted creates a hosted-checkout provider. The secret authenticates
// callbacks and must match the one configured at the provider.
func NewHosted(name, checkoutURL string, secret []byte) *Hosted {
	return &Hosted{name: name, checkoutURL: checkoutURL, secret: secret}
}

func (h *Hosted) Name() string { return h.name }

// Begin builds the checkout redirect for a queued intent.
func (h *Hosted) Begin(_ context.Context, intent *payment.Intent) (*Redirect, error) {
	if intent.Status != payment.StatusQueued {
		return nil, fmt.Errorf("gateway: begin on %s intent %s", intent.Status, intent.ID)
	}

	params := map[string]string{
		"intent":   intent.ID.String(),
		"amount":   strconv.FormatInt(intent.Amount.Amount, 10),
		"currency": intent.Amount.Currency,
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	return &Redirect{
		URL:    h.checkoutURL + "?" + q.Encode(),
		Params: params,
	}, nil
}

// callbackBody is the provider's confirmation payload.
type callbackBody struct {
	IntentID  string `json:"intent_id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// ParseCallback verifies the HMAC-SHA256 signature over the raw payload and
// parses the confirmation. Anything unverifiable is ErrProtocol.
func (h *Hosted) ParseCallback(_ context.Context, payload []byte, signature string) (*Confirmation, error) {
	if !h.verify(payload, signature) {
		return nil, fmt.Errorf("%w: bad signature", ErrProtocol)
	}

	var body callbackBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrProtocol, err)
	}

	if body.Status != "paid" {
		return nil, fmt.Errorf("%w: unexpected status %q", ErrProtocol, body.Status)
	}

	intentID, err := id.ParseIntentID(body.IntentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	return &Confirmation{IntentID: intentID, Reference: body.Reference}, nil
}

// Sign computes the callback signature for a payload. Exposed so tests and
// provider simulators can produce valid callbacks.
func (h *Hosted) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *Hosted) verify(payload []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)
	return hmac.Equal(sig, mac.Sum(nil))
}
