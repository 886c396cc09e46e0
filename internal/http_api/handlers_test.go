package http_api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vipcontent/vipcheckout/internal/checkout"
	"github.com/vipcontent/vipcheckout/internal/gateway"
	"github.com/vipcontent/vipcheckout/internal/metrics"
	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/internal/session"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

const testCode = "00020101021226830014br.gov.bcb.pix2561qrcode.example/pix/v2/cobv/1234"

type fakeCheckout struct {
	issueErr  error
	status    *models.ChargeStatus
	statusErr error
	lookup    *models.SubscriberLookup
	recordErr error

	lastBuyer *models.Buyer
	lastTxID  string
}

func (f *fakeCheckout) Start(context.Context) {}

func (f *fakeCheckout) IssueCharge(_ context.Context, buyer *models.Buyer) (*models.ChargeResult, error) {
	f.lastBuyer = buyer
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	return &models.ChargeResult{
		TransactionID:     "tx_1",
		ExternalReference: "vip_abc",
		PaymentCodeText:   testCode,
		Amount:            buyer.Amount,
	}, nil
}

func (f *fakeCheckout) CheckStatus(_ context.Context, transactionID string) (*models.ChargeStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.status != nil {
		return f.status, nil
	}
	return &models.ChargeStatus{TransactionID: transactionID, Status: models.SettlementPending, RawStatus: "waiting_payment"}, nil
}

func (f *fakeCheckout) ConfirmPayment(context.Context, string, string, time.Time) error {
	return nil
}

func (f *fakeCheckout) RecordSubscriber(_ context.Context, buyer *models.Buyer, transactionID string) (*models.Subscriber, error) {
	f.lastBuyer = buyer
	f.lastTxID = transactionID
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return &models.Subscriber{Email: buyer.Email, Status: models.SubscriberPending}, nil
}

func (f *fakeCheckout) IsSubscriber(context.Context, string) (*models.SubscriberLookup, error) {
	if f.lookup != nil {
		return f.lookup, nil
	}
	return &models.SubscriberLookup{Found: false}, nil
}

func (f *fakeCheckout) Quote(orderBump bool) models.Cents {
	if orderBump {
		return 3980
	}
	return 2990
}

func (f *fakeCheckout) DeliveryURL(orderBump bool) string {
	if orderBump {
		return "https://t.me/+vipbump"
	}
	return "https://t.me/+vip"
}

type fakeSessions struct {
	snap models.CheckoutSnapshot
	err  error
}

func (f *fakeSessions) Create(context.Context, *models.Buyer) (models.CheckoutSnapshot, error) {
	return f.snap, f.err
}

func (f *fakeSessions) Submit(context.Context, string, *models.Buyer) (models.CheckoutSnapshot, error) {
	return f.snap, f.err
}

func (f *fakeSessions) Get(_ context.Context, id string) (models.CheckoutSnapshot, error) {
	if f.err != nil || id != f.snap.ID {
		return models.CheckoutSnapshot{}, models.ErrSessionNotFound
	}
	return f.snap, nil
}

func (f *fakeSessions) Close(context.Context, string) error {
	return f.err
}

func newTestServer(t *testing.T, co models.CheckoutI, sessions SessionManager) (*HTTPServer, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	server := NewHTTPServer(co, sessions, reg, 0, true, logger.NewNop()).(*HTTPServer)
	return server, reg
}

func doRequest(t *testing.T, s *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

func TestCreatePix(t *testing.T) {
	co := &fakeCheckout{}
	s, _ := newTestServer(t, co, &fakeSessions{})

	w := doRequest(t, s, http.MethodPost, "/api/pix/create", `{"name":"Ana","email":"ana@example.com","amount":19.90}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["transactionId"] != "tx_1" || body["externalId"] != "vip_abc" || body["qrCodeText"] != testCode {
		t.Fatalf("unexpected body: %v", body)
	}
	if qr, _ := body["qrCode"].(string); !strings.HasPrefix(qr, "data:image/png;base64,") {
		t.Fatalf("expected a PNG data URL, got %q", qr)
	}
	if body["amount"] != 19.9 {
		t.Fatalf("expected amount 19.9, got %v", body["amount"])
	}
	if co.lastBuyer.Amount != 1990 {
		t.Fatalf("expected 1990 cents, got %d", co.lastBuyer.Amount)
	}
}

func TestCreatePixDefaultsToCatalogPrice(t *testing.T) {
	co := &fakeCheckout{}
	s, _ := newTestServer(t, co, &fakeSessions{})

	w := doRequest(t, s, http.MethodPost, "/api/pix/create", `{"name":"Ana","email":"ana@example.com","orderBump":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if co.lastBuyer.Amount != 3980 || !co.lastBuyer.OrderBump {
		t.Fatalf("expected catalog price with bump, got %+v", co.lastBuyer)
	}
}

func TestCreatePixErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", models.NewValidationError("email", "invalid email format"), http.StatusBadRequest},
		{"already subscribed", models.ErrAlreadySubscribed, http.StatusConflict},
		{"credentials missing", gateway.ErrCredentialsMissing, http.StatusInternalServerError},
		{"refused", &gateway.RefusedError{Reason: "antifraud"}, http.StatusBadGateway},
		{"unreachable", &gateway.StatusError{StatusCode: 503}, http.StatusBadGateway},
		{"empty code", gateway.ErrEmptyCode, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeCheckout{issueErr: tt.err}, &fakeSessions{})
			w := doRequest(t, s, http.MethodPost, "/api/pix/create", `{"name":"Ana","email":"ana@example.com"}`)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			body := decode(t, w)
			if body["success"] != false || body["error"] == "" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}

	s, _ := newTestServer(t, &fakeCheckout{}, &fakeSessions{})
	if w := doRequest(t, s, http.MethodPost, "/api/pix/create", `{"name":`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestPixStatus(t *testing.T) {
	paidAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	co := &fakeCheckout{status: &models.ChargeStatus{TransactionID: "tx_1", Status: models.SettlementPaid, RawStatus: "approved", PaidAt: &paidAt}}
	s, _ := newTestServer(t, co, &fakeSessions{})

	w := doRequest(t, s, http.MethodGet, "/api/pix/status?transactionId=tx_1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["isPaid"] != true || body["status"] != "paid" || body["gatewayStatus"] != "approved" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["paidAt"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected paidAt: %v", body["paidAt"])
	}

	if w := doRequest(t, s, http.MethodGet, "/api/pix/status", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without transactionId, got %d", w.Code)
	}

	co.statusErr = gateway.ErrGatewayUnreachable
	if w := doRequest(t, s, http.MethodGet, "/api/pix/status?transactionId=tx_1", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestRecordSubscriber(t *testing.T) {
	co := &fakeCheckout{}
	s, _ := newTestServer(t, co, &fakeSessions{})

	w := doRequest(t, s, http.MethodPost, "/api/subscriber", `{"email":"ana@example.com","name":"Ana","transactionId":"tx_1","amount":19.90}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["success"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	if co.lastTxID != "tx_1" || co.lastBuyer.Amount != 1990 {
		t.Fatalf("unexpected record call: %s %+v", co.lastTxID, co.lastBuyer)
	}

	co.recordErr = models.NewValidationError("transactionId", "cannot be empty")
	if w := doRequest(t, s, http.MethodPost, "/api/subscriber", `{"email":"ana@example.com"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	co.recordErr = models.ErrTransactionClaimed
	w = doRequest(t, s, http.MethodPost, "/api/subscriber", `{"email":"bia@example.com","transactionId":"tx_1"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if body := decode(t, w); body["success"] != false || body["error"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGetSubscriber(t *testing.T) {
	co := &fakeCheckout{}
	s, _ := newTestServer(t, co, &fakeSessions{})

	w := doRequest(t, s, http.MethodGet, "/api/subscriber?email=nope@example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["found"] != false || body["subscriber"] != nil || body["message"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}

	paidAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	co.lookup = &models.SubscriberLookup{Found: true, Name: "Ana", Email: "ana@example.com", PaidAt: &paidAt}
	body = decode(t, doRequest(t, s, http.MethodGet, "/api/subscriber?email=ana@example.com", ""))
	subscriber, ok := body["subscriber"].(map[string]interface{})
	if body["found"] != true || !ok {
		t.Fatalf("unexpected body: %v", body)
	}
	if subscriber["name"] != "Ana" || subscriber["email"] != "ana@example.com" || subscriber["paidAt"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected subscriber: %v", subscriber)
	}

	if w := doRequest(t, s, http.MethodGet, "/api/subscriber", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without email, got %d", w.Code)
	}
}

func TestCheckoutSessionLifecycle(t *testing.T) {
	co := &fakeCheckout{}
	mgr := checkout.NewManager(co, session.NewMemoryStore(time.Hour), metrics.NewCheckoutMetrics(prometheus.NewRegistry()), checkout.MachineOptions{
		PollInterval: time.Hour,
		ConfirmDelay: time.Millisecond,
		SessionTTL:   30 * time.Minute,
	}, logger.NewNop())
	t.Cleanup(mgr.Shutdown)
	s, _ := newTestServer(t, co, mgr)

	w := doRequest(t, s, http.MethodPost, "/api/checkout/sessions", `{"name":"Ana","email":"ana@example.com","amount":19.90}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	view, ok := decode(t, w)["session"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing session in %s", w.Body.String())
	}
	id, _ := view["id"].(string)
	if view["state"] != string(models.StateCodeDisplayed) || view["qrCodeText"] != testCode {
		t.Fatalf("unexpected view: %v", view)
	}
	if view["qrCodeUrl"] != "/api/checkout/sessions/"+id+"/qrcode.png" {
		t.Fatalf("unexpected qr url: %v", view["qrCodeUrl"])
	}

	w = doRequest(t, s, http.MethodGet, "/api/checkout/sessions/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doRequest(t, s, http.MethodGet, "/api/checkout/sessions/"+id+"/qrcode.png", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("body is not a PNG")
	}

	w = doRequest(t, s, http.MethodPost, "/api/checkout/sessions/"+id+"/submit", `{"name":"Ana","email":"ana@example.com"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a second submit, got %d", w.Code)
	}

	if w := doRequest(t, s, http.MethodDelete, "/api/checkout/sessions/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on close, got %d", w.Code)
	}
	if w := doRequest(t, s, http.MethodGet, "/api/checkout/sessions/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", w.Code)
	}
}

func TestCheckoutSessionRefused(t *testing.T) {
	co := &fakeCheckout{issueErr: &gateway.RefusedError{Reason: "antifraud"}}
	mgr := checkout.NewManager(co, session.NewMemoryStore(time.Hour), metrics.NewCheckoutMetrics(prometheus.NewRegistry()), checkout.MachineOptions{
		PollInterval: time.Hour,
		ConfirmDelay: time.Millisecond,
		SessionTTL:   30 * time.Minute,
	}, logger.NewNop())
	t.Cleanup(mgr.Shutdown)
	s, _ := newTestServer(t, co, mgr)

	w := doRequest(t, s, http.MethodPost, "/api/checkout/sessions", `{"name":"Ana","email":"ana@example.com"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	body := decode(t, w)
	view, _ := body["session"].(map[string]interface{})
	if view["state"] != string(models.StateForm) || body["error"] != view["error"] || body["error"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	id, _ := view["id"].(string)
	if w := doRequest(t, s, http.MethodGet, "/api/checkout/sessions/"+id+"/qrcode.png", ""); w.Code != http.StatusNotFound {
		t.Fatalf("form session has no QR code, got %d", w.Code)
	}
}

func TestSettledSessionRedirects(t *testing.T) {
	sessions := &fakeSessions{snap: models.CheckoutSnapshot{
		ID:     "3f1d8a9e-0c39-4a43-8a0a-4a4d0f1b2c3d",
		State:  models.StateSettled,
		Buyer:  models.Buyer{Name: "Ana", Email: "ana@example.com", Amount: 3980, OrderBump: true},
		Charge: &models.ChargeResult{TransactionID: "tx_1", PaymentCodeText: testCode},
	}}
	s, _ := newTestServer(t, &fakeCheckout{}, sessions)

	w := doRequest(t, s, http.MethodGet, "/api/checkout/sessions/"+sessions.snap.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	view, _ := decode(t, w)["session"].(map[string]interface{})
	if view["redirectUrl"] != "https://t.me/+vipbump" {
		t.Fatalf("unexpected redirect: %v", view)
	}
	if _, ok := view["qrCodeText"]; ok {
		t.Fatalf("settled view must not expose the code: %v", view)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, reg := newTestServer(t, &fakeCheckout{}, &fakeSessions{})
	m := metrics.NewCheckoutMetrics(reg)
	m.ChargesTotal.WithLabelValues("rokify", "ok").Inc()

	if w := doRequest(t, s, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w := doRequest(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `checkout_charges_total{gateway="rokify",result="ok"} 1`) {
		t.Fatalf("metrics missing charge counter:\n%s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &fakeCheckout{}, &fakeSessions{})
	w := doRequest(t, s, http.MethodOptions, "/api/pix/create", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header: %v", w.Header())
	}
}
