package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CheckoutMetrics holds the Prometheus collectors of the checkout flow.
type CheckoutMetrics struct {
	// Charges issued at the gateway, by result
	ChargesTotal *prometheus.CounterVec
	// Charged amount in centavos of successfully issued charges
	ChargesAmountTotal prometheus.Counter
	// Charges answered from a live pending record instead of the gateway
	ChargesReusedTotal prometheus.Counter

	// Status polls by normalized settlement status ("error" on failure)
	PollsTotal *prometheus.CounterVec

	// Confirmed payments, by the path that confirmed them
	SettlementsTotal *prometheus.CounterVec
	// Paid amount in centavos
	SettlementsAmountTotal prometheus.Counter

	// Returning-subscriber lookups by outcome
	LookupsTotal *prometheus.CounterVec

	// Ledger write failures by operation
	LedgerErrorsTotal *prometheus.CounterVec

	// Gateway latency by operation
	GatewayDuration *prometheus.HistogramVec

	// Live checkout sessions by state
	SessionsGauge *prometheus.GaugeVec
}

// NewCheckoutMetrics registers all collectors on reg.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	factory := promauto.With(reg)
	return &CheckoutMetrics{
		ChargesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_charges_total",
				Help: "Pix charges requested from the gateway",
			},
			[]string{"gateway", "result"},
		),
		ChargesAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "checkout_charges_amount_cents_total",
				Help: "Amount of issued Pix charges in centavos",
			},
		),
		ChargesReusedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "checkout_charges_reused_total",
				Help: "Repeated submissions answered with the live pending charge",
			},
		),
		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_status_polls_total",
				Help: "Gateway status polls by settlement status",
			},
			[]string{"status"},
		),
		SettlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_settlements_total",
				Help: "Confirmed payments by confirmation path",
			},
			[]string{"source"},
		),
		SettlementsAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "checkout_settlements_amount_cents_total",
				Help: "Amount of confirmed payments in centavos",
			},
		),
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_subscriber_lookups_total",
				Help: "Returning-subscriber checks by outcome",
			},
			[]string{"outcome"},
		),
		LedgerErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_ledger_errors_total",
				Help: "Subscriber ledger failures by operation",
			},
			[]string{"operation"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkout_gateway_request_duration_seconds",
				Help:    "Gateway request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		SessionsGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "checkout_sessions",
				Help: "Live checkout sessions by state",
			},
			[]string{"state"},
		),
	}
}
