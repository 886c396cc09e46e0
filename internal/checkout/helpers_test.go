package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/vipcontent/vipcheckout/internal/config"
	"github.com/vipcontent/vipcheckout/internal/gateway"
	"github.com/vipcontent/vipcheckout/internal/metrics"
	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/internal/repository"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

const testCode = "00020101021226830014br.gov.bcb.pix2561qrcode.example/pix/v2/cobv/1234"

// fakeGateway scripts charge creation and status answers.
type fakeGateway struct {
	mu          sync.Mutex
	createErr   error
	charges     int
	statuses    []models.SettlementStatus
	failures    int
	polls       int
	inFlight    int
	maxInFlight int

	// entered receives a value when a status poll starts, block holds it.
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) CreateCharge(_ context.Context, req *models.ChargeRequest) (*models.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.charges++
	return &models.ChargeResult{
		TransactionID:     fmt.Sprintf("tx_%d", f.charges),
		ExternalReference: req.ExternalReference,
		PaymentCodeText:   testCode,
		Amount:            req.Amount,
	}, nil
}

func (f *fakeGateway) ChargeStatus(_ context.Context, transactionID string) (*models.ChargeStatus, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	entered, block := f.entered, f.block
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	f.polls++
	if f.failures > 0 {
		f.failures--
		return nil, gateway.ErrGatewayUnreachable
	}
	status := models.SettlementPending
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	return &models.ChargeStatus{TransactionID: transactionID, Status: status, RawStatus: string(status)}, nil
}

func (f *fakeGateway) setStatuses(statuses ...models.SettlementStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = statuses
}

func (f *fakeGateway) counts() (charges, polls, maxInFlight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charges, f.polls, f.maxInFlight
}

type fakeNotifier struct {
	paid chan *models.PaidNotification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{paid: make(chan *models.PaidNotification, 16)}
}

func (n *fakeNotifier) NotifyPaid(notification *models.PaidNotification) {
	n.paid <- notification
}

func (n *fakeNotifier) expect(t *testing.T) *models.PaidNotification {
	t.Helper()
	select {
	case notification := <-n.paid:
		return notification
	case <-time.After(2 * time.Second):
		t.Fatal("expected a paid notification")
		return nil
	}
}

func (n *fakeNotifier) expectNone(t *testing.T) {
	t.Helper()
	select {
	case notification := <-n.paid:
		t.Fatalf("unexpected paid notification: %+v", notification)
	case <-time.After(50 * time.Millisecond):
	}
}

func testConfig() *config.Config {
	return &config.Config{
		GatewayRefPrefix:  "vip",
		Price:             29.90,
		OrderBumpPrice:    9.90,
		DeliveryURL:       "https://t.me/+vip",
		BumpDeliveryURL:   "https://t.me/+vipbump",
		SupportURL:        "https://wa.me/5511999999999",
		PollInterval:      10 * time.Millisecond,
		ConfirmDelay:      10 * time.Millisecond,
		SessionTTL:        30 * time.Minute,
		ReconcileInterval: time.Minute,
	}
}

func newTestRepository(t *testing.T) models.Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	repo, err := repository.NewRepository(conn, logger.NewNop())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

type testEnv struct {
	service  *Service
	repo     models.Repository
	gateway  *fakeGateway
	notifier *fakeNotifier
	metrics  *metrics.CheckoutMetrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     newTestRepository(t),
		gateway:  &fakeGateway{},
		notifier: newFakeNotifier(),
		metrics:  metrics.NewCheckoutMetrics(prometheus.NewRegistry()),
	}
	service, err := NewService(env.repo, env.gateway, env.notifier, env.metrics, logger.NewNop(), testConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.service = service
	return env
}

func ana() *models.Buyer {
	return &models.Buyer{Name: "Ana", Email: "ana@example.com", Amount: models.CentsFromMajor(19.90)}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
