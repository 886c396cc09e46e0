package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jaevor/go-nanoid"

	"github.com/vipcontent/vipcheckout/internal/config"
	"github.com/vipcontent/vipcheckout/internal/gateway"
	"github.com/vipcontent/vipcheckout/internal/metrics"
	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/pkg/logger"
	"github.com/vipcontent/vipcheckout/pkg/validation"
)

const (
	// chargeTTL is how long an issued Pix code stays payable.
	chargeTTL = 30 * time.Minute
	// reconcileBatch bounds the pending records polled per sweep.
	reconcileBatch = 100
)

// Settlement sources, used as metric labels.
const (
	sourcePoller  = "poller"
	sourceLookup  = "lookup"
	sourceSweeper = "sweeper"
	sourceRecord  = "record"
)

// Service is the checkout business logic: charge issuance, settlement
// polling, the subscriber ledger and delivery on confirmation.
type Service struct {
	logger  *logger.Logger
	config  *config.Config
	metrics *metrics.CheckoutMetrics

	repo        models.Repository
	gateway     models.Gateway
	notificator models.NotificationService

	price     models.Cents
	bumpPrice models.Cents

	newRef func() string
	now    func() time.Time
}

var _ models.CheckoutI = (*Service)(nil)

// NewService creates the checkout service
func NewService(
	repo models.Repository,
	gateway models.Gateway,
	notificator models.NotificationService,
	metrics *metrics.CheckoutMetrics,
	logger *logger.Logger,
	config *config.Config,
) (*Service, error) {
	idGenerator, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create reference generator: %w", err)
	}
	return &Service{
		logger:      logger,
		config:      config,
		metrics:     metrics,
		repo:        repo,
		gateway:     gateway,
		notificator: notificator,
		price:       models.CentsFromMajor(config.Price),
		bumpPrice:   models.CentsFromMajor(config.OrderBumpPrice),
		newRef:      idGenerator,
		now:         time.Now,
	}, nil
}

// Start runs the reconciliation sweeper until ctx is done. It catches buyers
// who paid and closed the page before the session poller saw the payment.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Debug("Reconciling pending subscribers")
			settled, err := s.Reconcile(ctx)
			if err != nil {
				s.logger.Error("Failed to reconcile pending subscribers", "error", err)
				continue
			}
			if settled > 0 {
				s.logger.Info("Reconciled pending subscribers", "settled", settled)
			}
		}
	}
}

// Reconcile polls every pending charge that may still be payable once and
// confirms the paid ones. It returns the number of new confirmations.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPendingSince(ctx, s.now().Add(-chargeTTL), reconcileBatch)
	if err != nil {
		s.metrics.LedgerErrorsTotal.WithLabelValues("list_pending").Inc()
		return 0, fmt.Errorf("failed to list pending subscribers: %w", err)
	}

	settled := 0
	for _, subscriber := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if subscriber.TransactionID == nil {
			continue
		}
		status, err := s.CheckStatus(ctx, *subscriber.TransactionID)
		if err != nil {
			s.logger.Debug("Reconciliation poll failed", "email", subscriber.Email, "error", err)
			continue
		}
		if !status.Status.IsPaid() {
			continue
		}
		transitioned, err := s.confirm(ctx, sourceSweeper, subscriber.Email, *subscriber.TransactionID, paidAtOr(status, s.now()))
		if err != nil {
			continue
		}
		if transitioned {
			settled++
		}
	}
	return settled, nil
}

// Quote prices a checkout from the catalog.
func (s *Service) Quote(orderBump bool) models.Cents {
	if orderBump {
		return s.price + s.bumpPrice
	}
	return s.price
}

// DeliveryURL is where a settled buyer is sent.
func (s *Service) DeliveryURL(orderBump bool) string {
	if orderBump && s.config.BumpDeliveryURL != "" {
		return s.config.BumpDeliveryURL
	}
	return s.config.DeliveryURL
}

func (s *Service) deliveryURLs(orderBump bool) []string {
	urls := []string{s.config.DeliveryURL}
	if orderBump && s.config.BumpDeliveryURL != "" && s.config.BumpDeliveryURL != s.config.DeliveryURL {
		urls = append(urls, s.config.BumpDeliveryURL)
	}
	return urls
}

// IssueCharge creates a Pix charge for the buyer. A repeated submission while
// a charge for the same amount is still payable gets that charge back.
func (s *Service) IssueCharge(ctx context.Context, buyer *models.Buyer) (*models.ChargeResult, error) {
	email, err := validateBuyer(buyer)
	if err != nil {
		return nil, err
	}
	if buyer.Amount <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}
	name := strings.TrimSpace(buyer.Name)

	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.IsPaid() {
			return nil, models.ErrAlreadySubscribed
		}
		charge, err := s.pendingCharge(ctx, existing, buyer.Amount)
		if err != nil {
			return nil, err
		}
		if charge != nil {
			s.metrics.ChargesReusedTotal.Inc()
			s.logger.Info("Reusing live pending charge", "email", email, "transaction_id", charge.TransactionID)
			return charge, nil
		}
	case errors.Is(err, models.ErrSubscriberNotFound):
	default:
		s.metrics.LedgerErrorsTotal.WithLabelValues("get_by_email").Inc()
		s.logger.Warn("Failed to look up subscriber before issuing charge", "email", email, "error", err)
	}

	req := &models.ChargeRequest{
		BuyerName:         name,
		BuyerEmail:        email,
		Amount:            buyer.Amount,
		ExternalReference: s.config.GatewayRefPrefix + "_" + s.newRef(),
	}

	start := time.Now()
	charge, err := s.gateway.CreateCharge(ctx, req)
	s.metrics.GatewayDuration.WithLabelValues("create_charge").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ChargesTotal.WithLabelValues(s.gateway.Name(), errorLabel(err)).Inc()
		s.logger.Error("Failed to issue charge", "email", email, "external_reference", req.ExternalReference, "error", err)
		return nil, err
	}
	s.metrics.ChargesTotal.WithLabelValues(s.gateway.Name(), "ok").Inc()
	s.metrics.ChargesAmountTotal.Add(float64(charge.Amount))
	s.logger.Info("Charge issued",
		"email", email,
		"transaction_id", charge.TransactionID,
		"external_reference", charge.ExternalReference,
		"amount", charge.Amount.String())

	subscriber := &models.Subscriber{
		Email:             email,
		Name:              models.StringPtr(name),
		TransactionID:     models.StringPtr(charge.TransactionID),
		ExternalReference: models.StringPtr(charge.ExternalReference),
		PaymentCode:       charge.PaymentCodeText,
		AmountCents:       int64(charge.Amount),
		Status:            models.SubscriberPending,
		OrderBump:         buyer.OrderBump,
	}
	if err := s.repo.UpsertPending(ctx, subscriber); err != nil {
		s.metrics.LedgerErrorsTotal.WithLabelValues("upsert_pending").Inc()
		s.logger.Error("Failed to record pending subscriber", "email", email, "transaction_id", charge.TransactionID, "error", err)
	}

	return charge, nil
}

// pendingCharge settles the stored charge of a pending record before a new
// charge can replace it. A paid charge is confirmed and ErrAlreadySubscribed
// returned. The stored charge is handed back when it is young enough, for the
// same amount and still payable.
func (s *Service) pendingCharge(ctx context.Context, existing *models.Subscriber, amount models.Cents) (*models.ChargeResult, error) {
	if existing.Status != models.SubscriberPending || existing.TransactionID == nil {
		return nil, nil
	}
	transactionID := *existing.TransactionID
	reusable := existing.PaymentCode != "" &&
		models.Cents(existing.AmountCents) == amount &&
		s.now().Sub(existing.UpdatedAt) < chargeTTL

	status, err := s.CheckStatus(ctx, transactionID)
	switch {
	case err != nil && reusable:
	case err != nil && errors.Is(err, gateway.ErrGatewayUnreachable):
		// replacing it now could drop a paid transaction from the ledger
		s.logger.Warn("Could not poll stored charge before issuing a new one", "email", existing.Email, "transaction_id", transactionID, "error", err)
		return nil, err
	case err != nil:
		s.logger.Debug("Stored charge poll failed, replacing it", "email", existing.Email, "transaction_id", transactionID, "error", err)
		return nil, nil
	case status.Status.IsPaid():
		if _, err := s.confirm(ctx, sourceLookup, existing.Email, transactionID, paidAtOr(status, s.now())); err != nil {
			return nil, err
		}
		return nil, models.ErrAlreadySubscribed
	case status.Status.IsFinal():
		return nil, nil
	}
	if !reusable {
		return nil, nil
	}

	charge := &models.ChargeResult{
		TransactionID:   transactionID,
		PaymentCodeText: existing.PaymentCode,
		Amount:          amount,
	}
	if existing.ExternalReference != nil {
		charge.ExternalReference = *existing.ExternalReference
	}
	return charge, nil
}

// CheckStatus polls the gateway once for the charge status.
func (s *Service) CheckStatus(ctx context.Context, transactionID string) (*models.ChargeStatus, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, models.NewValidationError("transactionId", "cannot be empty")
	}

	start := time.Now()
	status, err := s.gateway.ChargeStatus(ctx, transactionID)
	s.metrics.GatewayDuration.WithLabelValues("charge_status").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.PollsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.PollsTotal.WithLabelValues(string(status.Status)).Inc()
	return status, nil
}

// ConfirmPayment marks the buyer paid and delivers access on the first
// confirmation. The ledger is looked up by e-mail, falling back to the
// transaction id.
func (s *Service) ConfirmPayment(ctx context.Context, email, transactionID string, paidAt time.Time) error {
	_, err := s.confirm(ctx, sourcePoller, email, transactionID, paidAt)
	return err
}

func (s *Service) confirm(ctx context.Context, source, email, transactionID string, paidAt time.Time) (bool, error) {
	email = validation.NormalizeEmail(email)

	var transitioned bool
	var err error
	byTransaction := email == ""
	if !byTransaction {
		transitioned, err = s.repo.MarkPaidByEmail(ctx, email, paidAt)
		byTransaction = errors.Is(err, models.ErrSubscriberNotFound) && transactionID != ""
	}
	if byTransaction {
		transitioned, err = s.repo.MarkPaidByTransaction(ctx, transactionID, paidAt)
	}
	if err != nil {
		s.metrics.LedgerErrorsTotal.WithLabelValues("mark_paid").Inc()
		s.logger.Error("Failed to mark subscriber paid", "email", email, "transaction_id", transactionID, "source", source, "error", err)
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	var subscriber *models.Subscriber
	if byTransaction {
		subscriber, err = s.repo.GetByTransaction(ctx, transactionID)
	} else {
		subscriber, err = s.repo.GetByEmail(ctx, email)
	}
	if err != nil {
		s.logger.Error("Failed to load paid subscriber", "email", email, "transaction_id", transactionID, "error", err)
		return true, nil
	}
	s.deliver(source, subscriber)
	return true, nil
}

// deliver fires the access notifications without blocking the caller.
func (s *Service) deliver(source string, subscriber *models.Subscriber) {
	notification := models.NewPaidNotification(subscriber, s.deliveryURLs(subscriber.OrderBump))
	notification.SupportURL = s.config.SupportURL
	s.metrics.SettlementsTotal.WithLabelValues(source).Inc()
	s.metrics.SettlementsAmountTotal.Add(float64(notification.Amount))
	s.logger.Info("Subscriber paid",
		"email", notification.Email,
		"transaction_id", notification.TransactionID,
		"amount", notification.Amount.String(),
		"source", source)

	if s.notificator == nil {
		return
	}
	go s.notificator.NotifyPaid(notification)
}

// RecordSubscriber updates the ledger row that owns the transaction after
// asking the gateway about it: paid ones are recorded paid, anything else
// pending. A transaction only ever counts for the e-mail it was issued to.
func (s *Service) RecordSubscriber(ctx context.Context, buyer *models.Buyer, transactionID string) (*models.Subscriber, error) {
	email, err := validation.ValidateAndNormalizeEmail(buyer.Email)
	if err != nil {
		return nil, models.NewValidationError("email", err.Error())
	}
	name := strings.TrimSpace(buyer.Name)
	if name != "" {
		if err := validation.ValidateName(name); err != nil {
			return nil, models.NewValidationError("name", err.Error())
		}
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, models.NewValidationError("transactionId", "cannot be empty")
	}
	existing, err := s.repo.GetByTransaction(ctx, transactionID)
	switch {
	case errors.Is(err, models.ErrSubscriberNotFound):
		return nil, models.NewValidationError("transactionId", "unknown transaction")
	case err != nil:
		s.metrics.LedgerErrorsTotal.WithLabelValues("get_by_transaction").Inc()
		return nil, fmt.Errorf("failed to look up transaction: %w", err)
	case existing.Email != email:
		s.logger.Warn("Transaction claimed by another e-mail", "email", email, "owner", existing.Email, "transaction_id", transactionID)
		return nil, models.ErrTransactionClaimed
	}
	wasPaid := existing.IsPaid()

	// the charged amount and bump come from the ledger, not the request
	subscriber := &models.Subscriber{
		Email:             email,
		Name:              models.StringPtr(name),
		TransactionID:     models.StringPtr(transactionID),
		ExternalReference: existing.ExternalReference,
		PaymentCode:       existing.PaymentCode,
		AmountCents:       existing.AmountCents,
		Status:            models.SubscriberPending,
		OrderBump:         existing.OrderBump,
	}
	if subscriber.Name == nil {
		subscriber.Name = existing.Name
	}

	status, err := s.CheckStatus(ctx, transactionID)
	if err != nil {
		s.logger.Warn("Could not verify transaction, recording as pending", "email", email, "transaction_id", transactionID, "error", err)
	}
	if err != nil || !status.Status.IsPaid() {
		if err := s.repo.UpsertPending(ctx, subscriber); err != nil {
			s.metrics.LedgerErrorsTotal.WithLabelValues("upsert_pending").Inc()
			return nil, fmt.Errorf("failed to record subscriber: %w", err)
		}
		return s.repo.GetByEmail(ctx, email)
	}

	if err := s.repo.RecordPaid(ctx, subscriber, paidAtOr(status, s.now())); err != nil {
		s.metrics.LedgerErrorsTotal.WithLabelValues("record_paid").Inc()
		return nil, fmt.Errorf("failed to record subscriber: %w", err)
	}
	recorded, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriber: %w", err)
	}
	if !wasPaid {
		s.deliver(sourceRecord, recorded)
	}
	return recorded, nil
}

// IsSubscriber answers whether the e-mail belongs to a paid subscriber. A
// pending record with a charge gets one reconciliation poll. No charge is
// ever created here.
func (s *Service) IsSubscriber(ctx context.Context, email string) (*models.SubscriberLookup, error) {
	email, err := validation.ValidateAndNormalizeEmail(email)
	if err != nil {
		return nil, models.NewValidationError("email", err.Error())
	}

	subscriber, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrSubscriberNotFound) {
		s.metrics.LookupsTotal.WithLabelValues("not_found").Inc()
		return &models.SubscriberLookup{Found: false}, nil
	}
	if err != nil {
		s.metrics.LedgerErrorsTotal.WithLabelValues("get_by_email").Inc()
		return nil, fmt.Errorf("failed to look up subscriber: %w", err)
	}

	if subscriber.IsPaid() {
		s.metrics.LookupsTotal.WithLabelValues("found").Inc()
		return foundLookup(subscriber, *subscriber.PaidAt), nil
	}
	if subscriber.TransactionID == nil {
		s.metrics.LookupsTotal.WithLabelValues("pending").Inc()
		return &models.SubscriberLookup{Found: false}, nil
	}

	status, err := s.CheckStatus(ctx, *subscriber.TransactionID)
	if err != nil {
		s.logger.Debug("Reconciliation poll failed", "email", email, "error", err)
		s.metrics.LookupsTotal.WithLabelValues("pending").Inc()
		return &models.SubscriberLookup{Found: false}, nil
	}
	if !status.Status.IsPaid() {
		s.metrics.LookupsTotal.WithLabelValues("pending").Inc()
		return &models.SubscriberLookup{Found: false}, nil
	}

	paidAt := s.now()
	if _, err := s.confirm(ctx, sourceLookup, email, *subscriber.TransactionID, paidAt); err != nil {
		s.metrics.LookupsTotal.WithLabelValues("pending").Inc()
		return &models.SubscriberLookup{Found: false}, nil
	}
	s.metrics.LookupsTotal.WithLabelValues("reconciled").Inc()
	return foundLookup(subscriber, paidAt), nil
}

func foundLookup(subscriber *models.Subscriber, paidAt time.Time) *models.SubscriberLookup {
	return &models.SubscriberLookup{
		Found:  true,
		Name:   subscriber.DisplayName(),
		Email:  subscriber.Email,
		PaidAt: &paidAt,
	}
}

func validateBuyer(buyer *models.Buyer) (string, error) {
	if err := validation.ValidateName(buyer.Name); err != nil {
		return "", models.NewValidationError("name", err.Error())
	}
	email, err := validation.ValidateAndNormalizeEmail(buyer.Email)
	if err != nil {
		return "", models.NewValidationError("email", err.Error())
	}
	return email, nil
}

func paidAtOr(status *models.ChargeStatus, fallback time.Time) time.Time {
	if status.PaidAt != nil {
		return *status.PaidAt
	}
	return fallback
}
