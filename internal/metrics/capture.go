// Package metrics provides Prometheus metrics for capture sessions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "simstream"

var (
	backendAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "backend_attempts_total",
		Help:      "Capture backend attempts by outcome",
	}, []string{"backend", "result"})

	framesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames delivered by capture backends",
	}, []string{"backend"})

	exhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "exhausted_total",
		Help:      "Sessions that ran out of capture backends",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "active",
		Help:      "Sessions currently in the registry",
	})

	streamClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "clients",
		Help:      "Connected stream clients by transport",
	}, []string{"transport"})

	sessionFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "fps",
		Help:      "Measured capture frame rate",
	}, []string{"udid"})

	sessionDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "dropped_frames_total",
		Help:      "Frames replaced in the delivery queue before a consumer took them",
	}, []string{"udid"})

	// Local cache for SSE exporter access.
	sessionCache   = make(map[string]*SessionMetrics)
	sessionCacheMu sync.RWMutex
)

// Backend attempt results.
const (
	ResultActive = "active"
	ResultFailed = "failed"
	ResultEnded  = "ended"
)

// SessionMetrics holds current metric values for a session.
type SessionMetrics struct {
	Mode    string
	FPS     float64
	Frames  uint64
	Dropped uint64
}

// RecordBackendAttempt counts one backend outcome.
func RecordBackendAttempt(backend, result string) {
	backendAttempts.WithLabelValues(backend, result).Inc()
}

// AddFrame counts one delivered frame.
func AddFrame(backend string) {
	framesCaptured.WithLabelValues(backend).Inc()
}

// RecordExhausted counts a session whose every backend failed.
func RecordExhausted() {
	exhaustedTotal.Inc()
}

// SetActiveSessions sets the registry size.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// StreamClientConnected increments the client gauge for transport and
// returns the matching decrement.
func StreamClientConnected(transport string) func() {
	g := streamClients.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

// SetSessionMetrics publishes a session's current values.
func SetSessionMetrics(udid string, m SessionMetrics) {
	sessionFPS.WithLabelValues(udid).Set(m.FPS)
	sessionDropped.WithLabelValues(udid).Set(float64(m.Dropped))

	sessionCacheMu.Lock()
	dup := m
	sessionCache[udid] = &dup
	sessionCacheMu.Unlock()
}

// DeleteSessionMetrics removes all metrics for a session.
func DeleteSessionMetrics(udid string) {
	sessionFPS.DeleteLabelValues(udid)
	sessionDropped.DeleteLabelValues(udid)

	sessionCacheMu.Lock()
	delete(sessionCache, udid)
	sessionCacheMu.Unlock()
}

// GetSessionMetrics returns current metric values for a session.
func GetSessionMetrics(udid string) *SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	if m, ok := sessionCache[udid]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllSessionMetrics returns metrics for every session.
func GetAllSessionMetrics() map[string]*SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	result := make(map[string]*SessionMetrics, len(sessionCache))
	for id, m := range sessionCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

// SessionSample is a point-in-time reading of a session's counters.
type SessionSample struct {
	Identity string
	Mode     string
	Frames   uint64
	Dropped  uint64
}
