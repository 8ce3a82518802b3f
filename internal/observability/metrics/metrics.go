package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests,
// authentication outcomes, presentation session lifecycle events, and slide
// conversion activity. It coordinates concurrent writers via a RWMutex while
// exposing a thread-safe gauge for active session tracking.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	authEvents      map[string]uint64
	sessionEvents   map[string]uint64
	activeSessions  atomic.Int64
	slidePages      uint64
	slideUploads    uint64
	slideFailures   uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		authEvents:      make(map[string]uint64),
		sessionEvents:   make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveAuthEvent records an authentication outcome keyed by event name
// (e.g., "signup", "signin_success", "signin_failure").
func (r *Recorder) ObserveAuthEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.authEvents[normalized]++
	r.mu.Unlock()
}

// SessionStarted records a start lifecycle event and increments the active
// session gauge atomically so concurrent sessions remain consistent.
func (r *Recorder) SessionStarted() {
	r.incrementSessionEvent("start")
	r.activeSessions.Add(1)
}

// SessionEnded records an end lifecycle event and decrements the active
// session gauge, guarding against negative counts when concurrent updates
// race.
func (r *Recorder) SessionEnded() {
	r.incrementSessionEvent("end")
	r.decrementGauge(&r.activeSessions)
}

func (r *Recorder) incrementSessionEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.sessionEvents[normalized]++
	r.mu.Unlock()
}

// ObserveSlideConversion accumulates page, upload, and failure counts for a
// processed deck.
func (r *Recorder) ObserveSlideConversion(totalPages, uploaded int) {
	if totalPages < 0 || uploaded < 0 || uploaded > totalPages {
		return
	}
	r.mu.Lock()
	r.slidePages += uint64(totalPages)
	r.slideUploads += uint64(uploaded)
	r.slideFailures += uint64(totalPages - uploaded)
	r.mu.Unlock()
}

// ActiveSessions exposes the current active session gauge value.
func (r *Recorder) ActiveSessions() int64 {
	return r.activeSessions.Load()
}

// Reset clears all recorded values. Intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authEvents = make(map[string]uint64)
	r.sessionEvents = make(map[string]uint64)
	r.slidePages = 0
	r.slideUploads = 0
	r.slideFailures = 0
	r.mu.Unlock()
	r.activeSessions.Store(0)
}

// Handler serves the recorded metrics in Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	authEvents := sortedKeys(r.authEvents)
	sessionEvents := sortedKeys(r.sessionEvents)

	fmt.Fprintln(w, "# HELP slidecast_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE slidecast_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "slidecast_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP slidecast_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE slidecast_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "slidecast_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP slidecast_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE slidecast_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "slidecast_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP slidecast_auth_events_total Authentication events by outcome")
	fmt.Fprintln(w, "# TYPE slidecast_auth_events_total counter")
	for _, event := range authEvents {
		fmt.Fprintf(w, "slidecast_auth_events_total{event=\"%s\"} %d\n", event, r.authEvents[event])
	}

	fmt.Fprintln(w, "# HELP slidecast_session_events_total Session lifecycle events by type")
	fmt.Fprintln(w, "# TYPE slidecast_session_events_total counter")
	for _, event := range sessionEvents {
		fmt.Fprintf(w, "slidecast_session_events_total{event=\"%s\"} %d\n", event, r.sessionEvents[event])
	}

	fmt.Fprintln(w, "# HELP slidecast_active_sessions Current number of sessions marked as active")
	fmt.Fprintln(w, "# TYPE slidecast_active_sessions gauge")
	fmt.Fprintf(w, "slidecast_active_sessions %d\n", r.activeSessions.Load())

	fmt.Fprintln(w, "# HELP slidecast_slide_pages_total Total slide pages produced by conversions")
	fmt.Fprintln(w, "# TYPE slidecast_slide_pages_total counter")
	fmt.Fprintf(w, "slidecast_slide_pages_total %d\n", r.slidePages)

	fmt.Fprintln(w, "# HELP slidecast_slide_uploads_total Total slide pages uploaded to object storage")
	fmt.Fprintln(w, "# TYPE slidecast_slide_uploads_total counter")
	fmt.Fprintf(w, "slidecast_slide_uploads_total %d\n", r.slideUploads)

	fmt.Fprintln(w, "# HELP slidecast_slide_upload_failures_total Total slide pages dropped after failed uploads")
	fmt.Fprintln(w, "# TYPE slidecast_slide_upload_failures_total counter")
	fmt.Fprintf(w, "slidecast_slide_upload_failures_total %d\n", r.slideFailures)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(values map[string]uint64) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveAuthEvent is a helper on the default recorder.
func ObserveAuthEvent(event string) {
	defaultRecorder.ObserveAuthEvent(event)
}

// SessionStarted is a helper on the default recorder.
func SessionStarted() {
	defaultRecorder.SessionStarted()
}

// SessionEnded is a helper on the default recorder.
func SessionEnded() {
	defaultRecorder.SessionEnded()
}

// ObserveSlideConversion is a helper on the default recorder.
func ObserveSlideConversion(totalPages, uploaded int) {
	defaultRecorder.ObserveSlideConversion(totalPages, uploaded)
}
