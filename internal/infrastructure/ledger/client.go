package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerSignature      = "X-Signature"
	headerSigningKey     = "X-Signing-Key"
)

// HTTPLedgerClient submits signer rotations to the ledger gateway. The
// rotation body is signed with the replacement key, which proves the
// platform holds it; the submission id is sent as the idempotency key.
type HTTPLedgerClient struct {
	baseURL  string
	apiToken string
	http     *http.Client
}

func NewHTTPLedgerClient(baseURL, apiToken string, timeout time.Duration) *HTTPLedgerClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPLedgerClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPLedgerClient) SubmitSignerRotation(ctx context.Context, rotation domain.LedgerRotation) (*domain.LedgerReceipt, error) {
	body, err := json.Marshal(RotationRequest{
		AccountKey:   rotation.AccountKey,
		OldKey:       rotation.OldKey,
		NewKey:       rotation.NewKey,
		Weight:       rotation.Weight,
		SubmissionID: rotation.SubmissionID,
	})
	if err != nil {
		return nil, err
	}
	signature, err := sign(rotation.SigningSecret, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/signer-rotations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerIdempotencyKey, rotation.SubmissionID)
	req.Header.Set(headerSignature, signature)
	req.Header.Set(headerSigningKey, rotation.NewKey)
	c.authorize(req)

	response, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	responseBodyBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return decodeReceipt(responseBodyBytes)
	}
	return nil, statusError(response.StatusCode, responseBodyBytes)
}

// LookupSubmission asks whether a submission id was applied. A 404 is a
// definite "no".
func (c *HTTPLedgerClient) LookupSubmission(ctx context.Context, submissionID string) (*domain.LedgerReceipt, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/submissions/%s", c.baseURL, url.PathEscape(submissionID)), nil)
	if err != nil {
		return nil, false, err
	}
	c.authorize(req)

	response, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer response.Body.Close()
	responseBodyBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, false, err
	}

	switch {
	case response.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case response.StatusCode >= 200 && response.StatusCode < 300:
		receipt, err := decodeReceipt(responseBodyBytes)
		if err != nil {
			return nil, false, err
		}
		return receipt, true, nil
	}
	return nil, false, statusError(response.StatusCode, responseBodyBytes)
}

func (c *HTTPLedgerClient) authorize(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}

func decodeReceipt(body []byte) (*domain.LedgerReceipt, error) {
	var receipt ReceiptResponse
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, &domain.LedgerError{Code: domain.LedgerCodeMalformedResponse, Message: err.Error()}
	}
	return &domain.LedgerReceipt{ReceiptID: receipt.ReceiptID, SubmittedAt: receipt.SubmittedAt}, nil
}

// statusError classifies a non-2xx answer. Throttling and server errors are
// temporary; everything else is the ledger refusing the rotation.
func statusError(status int, body []byte) error {
	var errorResponse ErrorResponse
	_ = json.Unmarshal(body, &errorResponse)
	code := errorResponse.Code
	if code == "" {
		code = fmt.Sprintf("http_%d", status)
	}
	message := errorResponse.Error
	if message == "" {
		message = http.StatusText(status)
	}
	return &domain.LedgerError{
		Code:      code,
		Message:   message,
		Temporary: status == http.StatusTooManyRequests || status >= 500,
	}
}

// sign expects the hex encoded ed25519 seed produced at request creation.
func sign(secret, payload []byte) (string, error) {
	seed := make([]byte, hex.DecodedLen(len(secret)))
	n, err := hex.Decode(seed, secret)
	if err != nil || n != ed25519.SeedSize {
		return "", fmt.Errorf("signing secret is not a hex encoded ed25519 seed")
	}
	key := ed25519.NewKeyFromSeed(seed[:n])
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
		for i := range key {
			key[i] = 0
		}
	}()
	return hex.EncodeToString(ed25519.Sign(key, payload)), nil
}
