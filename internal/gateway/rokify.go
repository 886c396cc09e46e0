package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

const (
	// maxBodySize caps how much of a gateway response we read.
	maxBodySize = 1 << 20

	statusRefused = "refused"
)

// AmountUnit selects how amounts are written in the charge payload.
type AmountUnit string

const (
	AmountCents AmountUnit = "cents"
	AmountMajor AmountUnit = "major"
)

// Rokify is the Pix gateway adapter for the Rokify transactions API.
type Rokify struct {
	logger *logger.Logger

	baseURL    string
	auth       Authenticator
	amountUnit AmountUnit
	client     *http.Client
}

// NewRokify creates a new Rokify adapter.
func NewRokify(baseURL string, auth Authenticator, amountUnit AmountUnit, timeout time.Duration, logger *logger.Logger) *Rokify {
	if amountUnit == "" {
		amountUnit = AmountCents
	}
	return &Rokify{
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		amountUnit: amountUnit,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (r *Rokify) Name() string {
	return "rokify"
}

type chargeCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type chargePayload struct {
	Amount        interface{}    `json:"amount"`
	PaymentMethod string         `json:"paymentMethod"`
	Customer      chargeCustomer `json:"customer"`
	ExternalRef   string         `json:"externalRef"`
}

func (r *Rokify) amount(c models.Cents) interface{} {
	if r.amountUnit == AmountMajor {
		return json.Number(fmt.Sprintf("%d.%02d", int64(c)/100, int64(c)%100))
	}
	return int64(c)
}

// CreateCharge issues a Pix charge and returns the normalized result.
func (r *Rokify) CreateCharge(ctx context.Context, req *models.ChargeRequest) (*models.ChargeResult, error) {
	payload := chargePayload{
		Amount:        r.amount(req.Amount),
		PaymentMethod: "PIX",
		Customer: chargeCustomer{
			Name:  req.BuyerName,
			Email: req.BuyerEmail,
		},
		ExternalRef: req.ExternalReference,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge payload: %w", err)
	}

	statusCode, respBody, err := r.do(ctx, http.MethodPost, r.baseURL+"/transactions", body)
	if err != nil {
		return nil, err
	}

	doc, decodeErr := decodeDocument(respBody)
	if statusCode < 200 || statusCode > 299 {
		if decodeErr == nil && strings.EqualFold(doc.probe(StatusFields), statusRefused) {
			return nil, &RefusedError{Reason: doc.probe(RefusedReasonFields)}
		}
		return nil, &StatusError{StatusCode: statusCode, Body: truncate(string(respBody), 256)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, decodeErr)
	}

	r.logger.Debug("Gateway charge response", "status_code", statusCode, "tx_status", doc.probe(StatusFields), "external_ref", req.ExternalReference)

	if strings.EqualFold(doc.probe(StatusFields), statusRefused) {
		return nil, &RefusedError{Reason: doc.probe(RefusedReasonFields)}
	}

	transactionID := doc.probe(TransactionIDFields)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: no transaction id in charge response", ErrMalformedResponse)
	}

	code := doc.probe(CodeTextFields)
	if code == "" {
		return nil, fmt.Errorf("%w: transaction %s", ErrEmptyCode, transactionID)
	}

	return &models.ChargeResult{
		TransactionID:     transactionID,
		ExternalReference: req.ExternalReference,
		PaymentCodeText:   code,
		Amount:            req.Amount,
	}, nil
}

// ChargeStatus polls the settlement state of a transaction.
func (r *Rokify) ChargeStatus(ctx context.Context, transactionID string) (*models.ChargeStatus, error) {
	statusCode, respBody, err := r.do(ctx, http.MethodGet, r.baseURL+"/transactions/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode > 299 {
		return nil, &StatusError{StatusCode: statusCode, Body: truncate(string(respBody), 256)}
	}

	doc, err := decodeDocument(respBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	doc = doc.unwrap()

	raw := doc.probe(StatusFields)
	status := &models.ChargeStatus{
		TransactionID: transactionID,
		Status:        NormalizeStatus(raw),
		RawStatus:     raw,
	}
	if paidAt := doc.probe(PaidAtFields); paidAt != "" {
		if t, err := parseTime(paidAt); err == nil {
			status.PaidAt = &t
		}
	}
	return status, nil
}

// do sends an authenticated request. Auth failures are mapped to ErrAuthFailed
// and transport failures to ErrGatewayUnreachable; other statuses are
// returned to the caller.
func (r *Rokify) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := r.auth.Authorize(ctx, req); err != nil {
		return 0, nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response: %s", ErrGatewayUnreachable, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return 0, nil, fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}
	return resp.StatusCode, respBody, nil
}

// NormalizeStatus maps the gateway vocabulary onto SettlementStatus.
func NormalizeStatus(raw string) models.SettlementStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "approved", "completed":
		return models.SettlementPaid
	case "pending", "waiting_payment", "processing", "created":
		return models.SettlementPending
	case "expired":
		return models.SettlementExpired
	case "cancelled", "canceled", "refused", "refunded", "chargedback":
		return models.SettlementCancelled
	default:
		return models.SettlementUnknown
	}
}

func parseTime(value string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
