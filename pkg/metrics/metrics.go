package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "procurement"

// Metrics holds all Prometheus metrics for the application.
// Recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	HTTPResponseSize  *prometheus.HistogramVec

	// Workflow Metrics
	TransitionsTotal        *prometheus.CounterVec
	TransitionDuration      *prometheus.HistogramVec
	PurchaseOrdersGenerated prometheus.Counter
	LockContention          prometheus.Counter

	// Document Metrics
	ExtractionsTotal   *prometheus.CounterVec
	ReceiptValidations *prometheus.CounterVec
	OCRRequestDuration *prometheus.HistogramVec
	DocumentUploadSize *prometheus.HistogramVec

	// Notification Metrics
	NotificationsTotal   *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	WebsocketClients     prometheus.Gauge

	// Authentication Metrics
	AuthRequestsTotal *prometheus.CounterVec
}

// New creates metrics registered on the default Prometheus registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path", "status"},
		),

		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_transitions_total",
				Help:      "Workflow transitions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		TransitionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_transition_duration_seconds",
				Help:      "Time spent applying a workflow transition, lock included",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"action"},
		),
		PurchaseOrdersGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchase_orders_generated_total",
				Help:      "Purchase orders generated on final approval",
			},
		),
		LockContention: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_lock_contention_total",
				Help:      "Transitions rejected because another one held the request lock",
			},
		),

		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_extractions_total",
				Help:      "Document extractions by document kind and outcome",
			},
			[]string{"document", "outcome"},
		),
		ReceiptValidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "receipt_validations_total",
				Help:      "Receipt validations by result",
			},
			[]string{"result"},
		),
		OCRRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ocr_request_duration_seconds",
				Help:      "Vision OCR latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
			},
			[]string{"status"},
		),
		DocumentUploadSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_upload_size_bytes",
				Help:      "Size of uploaded documents",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"document"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification deliveries by channel and status",
			},
			[]string{"channel", "status"},
		),
		NotificationsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Notification events dropped because the queue was full",
			},
		),
		WebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Live request feed connections on this instance",
			},
		),

		AuthRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"method", "status"},
		),
	}
}

// RecordTransition counts a workflow transition attempt
func (m *Metrics) RecordTransition(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// RecordPurchaseOrder counts a generated purchase order
func (m *Metrics) RecordPurchaseOrder() {
	if m == nil {
		return
	}
	m.PurchaseOrdersGenerated.Inc()
}

// RecordLockContention counts a transition that could not take the request lock
func (m *Metrics) RecordLockContention() {
	if m == nil {
		return
	}
	m.LockContention.Inc()
}

// RecordExtraction counts a document extraction
func (m *Metrics) RecordExtraction(document, outcome string, size int) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(document, outcome).Inc()
	m.DocumentUploadSize.WithLabelValues(document).Observe(float64(size))
}

// RecordReceiptValidation counts a receipt validation by result
func (m *Metrics) RecordReceiptValidation(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.ReceiptValidations.WithLabelValues(result).Inc()
}

// RecordOCR observes a vision OCR call
func (m *Metrics) RecordOCR(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OCRRequestDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// RecordNotification counts a delivery attempt on a channel
func (m *Metrics) RecordNotification(channel, status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// RecordNotificationDropped counts an event discarded by a full queue
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

// SetWebsocketClients reports the number of live feed connections
func (m *Metrics) SetWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Set(float64(n))
}

// RecordAuth counts an authentication request
func (m *Metrics) RecordAuth(method, status string) {
	if m == nil {
		return
	}
	m.AuthRequestsTotal.WithLabelValues(method, status).Inc()
}
