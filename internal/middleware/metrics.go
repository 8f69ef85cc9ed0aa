package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal       uint64
	RequestsInProgress  uint64
	RequestsSuccess     uint64
	RequestsFailed      uint64
	SubmissionsAccepted uint64
	SubmissionsRejected uint64
	SubmissionsFailed   uint64
	DeliveriesTotal     uint64
	DeliveriesFailed    uint64
	DeliveriesDropped   uint64
	StartTime           time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// IncrementRequests increments total request counter
func (m *Metrics) IncrementRequests() {
	atomic.AddUint64(&m.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func (m *Metrics) IncrementInProgress() {
	atomic.AddUint64(&m.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func (m *Metrics) DecrementInProgress() {
	atomic.AddUint64(&m.RequestsInProgress, ^uint64(0))
}

// IncrementSuccess increments successful request counter
func (m *Metrics) IncrementSuccess() {
	atomic.AddUint64(&m.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func (m *Metrics) IncrementFailed() {
	atomic.AddUint64(&m.RequestsFailed, 1)
}

func (m *Metrics) IncrementSubmissionsAccepted() {
	atomic.AddUint64(&m.SubmissionsAccepted, 1)
}

func (m *Metrics) IncrementSubmissionsRejected() {
	atomic.AddUint64(&m.SubmissionsRejected, 1)
}

func (m *Metrics) IncrementSubmissionsFailed() {
	atomic.AddUint64(&m.SubmissionsFailed, 1)
}

func (m *Metrics) IncrementDeliveries() {
	atomic.AddUint64(&m.DeliveriesTotal, 1)
}

func (m *Metrics) IncrementDeliveriesFailed() {
	atomic.AddUint64(&m.DeliveriesFailed, 1)
}

func (m *Metrics) IncrementDeliveriesDropped() {
	atomic.AddUint64(&m.DeliveriesDropped, 1)
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&m.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&m.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&m.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&m.RequestsFailed),
		"submissions_accepted": atomic.LoadUint64(&m.SubmissionsAccepted),
		"submissions_rejected": atomic.LoadUint64(&m.SubmissionsRejected),
		"submissions_failed":   atomic.LoadUint64(&m.SubmissionsFailed),
		"deliveries_total":     atomic.LoadUint64(&m.DeliveriesTotal),
		"deliveries_failed":    atomic.LoadUint64(&m.DeliveriesFailed),
		"deliveries_dropped":   atomic.LoadUint64(&m.DeliveriesDropped),
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.IncrementRequests()
		m.IncrementInProgress()
		defer m.DecrementInProgress()

		// Wrap response writer to capture status
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// Track success/failure based on status code
		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.IncrementSuccess()
		} else {
			m.IncrementFailed()
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
