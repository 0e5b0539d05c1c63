// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_sessions_connected",
		Help: "Number of sessions currently in the connected state.",
	})

	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_reconnect_attempts_total",
		Help: "Reconnect attempts scheduled after non-fatal disconnects.",
	})

	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_messages_ingested_total",
		Help: "Inbound messages persisted by the ingestion pipeline.",
	}, []string{"type"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_messages_sent_total",
		Help: "Outbound messages transmitted.",
	}, []string{"type"})

	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_notifications_total",
		Help: "Notification delivery outcomes.",
	}, []string{"status"})

	CredentialWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_credential_writes_total",
		Help: "Credential blobs flushed to the store.",
	})
)

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
