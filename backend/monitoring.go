// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const LatencyBuckets = 101
const LatencyBucketSize = 10 * time.Millisecond

// Histogram counts request latencies in fixed-size buckets. The last bucket
// collects everything slower than (LatencyBuckets-1)*LatencyBucketSize.
type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // Sum of durations in milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	idx := int(d / LatencyBucketSize)
	if idx >= LatencyBuckets {
		idx = LatencyBuckets - 1
	}
	if idx < 0 {
		idx = 0
	}
	h.Buckets[idx]++
	h.Count++
	h.Sum += ms
}

func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	for i := 0; i < LatencyBuckets; i++ {
		h.Buckets[i] += other.Buckets[i]
	}
	h.Count += other.Count
	h.Sum += other.Sum
}

// Percentile returns the upper bound of the bucket holding the p-th percentile.
func (h *Histogram) Percentile(p float64) time.Duration {
	if h.Count == 0 {
		return 0
	}
	target := uint64(p / 100 * float64(h.Count))
	if target == 0 {
		target = 1
	}
	var seen uint64
	for i, n := range h.Buckets {
		seen += n
		if seen >= target {
			return time.Duration(i+1) * LatencyBucketSize
		}
	}
	return LatencyBuckets * LatencyBucketSize
}

// ResolutionConfig defines the policy for a single bucket set.
type ResolutionConfig struct {
	Name       string        `json:"name"`
	Resolution time.Duration `json:"resolution"`
	Buckets    int           `json:"buckets"`
}

var DefaultResolutions = []ResolutionConfig{
	{"1m", 1 * time.Minute, 120},
	{"1h", 1 * time.Hour, 48},
}

// Point represents a single data point in a time series.
type Point[T any] struct {
	Timestamp int64 `json:"t"`
	Value     T     `json:"v"`
}

// RingBuffer is a fixed-size circular buffer for storing time series data.
type RingBuffer[T any] struct {
	Config ResolutionConfig `json:"config"`
	Data   []Point[T]       `json:"data"`
	Head   int              `json:"head"` // Points to the *next* write position
}

func NewRingBuffer[T any](cfg ResolutionConfig) *RingBuffer[T] {
	return &RingBuffer[T]{
		Config: cfg,
		Data:   make([]Point[T], cfg.Buckets),
	}
}

func (rb *RingBuffer[T]) align(timestamp int64) int64 {
	resSec := int64(rb.Config.Resolution.Seconds())
	return (timestamp / resSec) * resSec
}

// last returns the most recent point, if any.
func (rb *RingBuffer[T]) last() *Point[T] {
	p := &rb.Data[(rb.Head-1+len(rb.Data))%len(rb.Data)]
	if p.Timestamp == 0 {
		return nil
	}
	return p
}

// Add writes a point, replacing the latest one when it falls in the same slot.
func (rb *RingBuffer[T]) Add(timestamp int64, value T) {
	aligned := rb.align(timestamp)
	if p := rb.last(); p != nil && p.Timestamp == aligned {
		p.Value = value
		return
	}
	rb.Data[rb.Head] = Point[T]{Timestamp: aligned, Value: value}
	rb.Head = (rb.Head + 1) % len(rb.Data)
}

// GetPoints returns the data points sorted by time.
func (rb *RingBuffer[T]) GetPoints() []Point[T] {
	points := make([]Point[T], 0, len(rb.Data))
	for i := 0; i < len(rb.Data); i++ {
		idx := (rb.Head + i) % len(rb.Data)
		if rb.Data[idx].Timestamp > 0 {
			points = append(points, rb.Data[idx])
		}
	}
	return points
}

// CounterSeries accumulates a count per time slot at every resolution.
type CounterSeries struct {
	Name    string                         `json:"name"`
	Buffers map[string]*RingBuffer[uint64] `json:"buffers"`
}

func NewCounterSeries(name string) *CounterSeries {
	buffers := make(map[string]*RingBuffer[uint64])
	for _, cfg := range DefaultResolutions {
		buffers[cfg.Name] = NewRingBuffer[uint64](cfg)
	}
	return &CounterSeries{Name: name, Buffers: buffers}
}

func (cs *CounterSeries) Inc(timestamp int64) {
	for _, buf := range cs.Buffers {
		if p := buf.last(); p != nil && p.Timestamp == buf.align(timestamp) {
			p.Value++
			continue
		}
		buf.Add(timestamp, 1)
	}
}

// RequestMetrics aggregates HTTP traffic for /api/metrics.
type RequestMetrics struct {
	mu       sync.Mutex
	started  time.Time
	requests uint64
	errors   uint64
	byRoute  map[string]uint64
	latency  Histogram
	rate     *CounterSeries
}

func NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{
		started: time.Now(),
		byRoute: make(map[string]uint64),
		rate:    NewCounterSeries("requests"),
	}
}

// routeClass groups request paths so IDs don't explode the route map.
func routeClass(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/"):
		return path
	case strings.HasPrefix(path, "/doc/"):
		return "/doc"
	case strings.HasPrefix(path, "/static/"):
		return "/static"
	case strings.HasPrefix(path, "/nxpath/"):
		return "/nxpath"
	}
	return path
}

func (m *RequestMetrics) Record(path string, status int, d time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	if status >= 500 {
		m.errors++
	}
	m.byRoute[routeClass(path)]++
	m.latency.Add(d)
	m.rate.Inc(now.Unix())
}

// MetricsSnapshot is the JSON body of /api/metrics.
type MetricsSnapshot struct {
	UptimeSeconds int64                      `json:"uptimeSeconds"`
	Requests      uint64                     `json:"requests"`
	Errors        uint64                     `json:"errors"`
	Routes        map[string]uint64          `json:"routes"`
	Latency       Histogram                  `json:"latency"`
	P50MS         int64                      `json:"p50Ms"`
	P95MS         int64                      `json:"p95Ms"`
	RequestRate   map[string][]Point[uint64] `json:"requestRate"`
	ActiveWS      int                        `json:"activeWS"`
	Documents     int                        `json:"documents"`
}

func (m *RequestMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MetricsSnapshot{
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Requests:      m.requests,
		Errors:        m.errors,
		Routes:        make(map[string]uint64, len(m.byRoute)),
		Latency:       m.latency,
		P50MS:         m.latency.Percentile(50).Milliseconds(),
		P95MS:         m.latency.Percentile(95).Milliseconds(),
		RequestRate:   make(map[string][]Point[uint64]),
	}
	for k, v := range m.byRoute {
		s.Routes[k] = v
	}
	for name, buf := range m.rate.Buffers {
		s.RequestRate[name] = buf.GetPoints()
	}
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack hands the connection over for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacking not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// metricsMiddleware records the latency and status of every request.
func metricsMiddleware(m *RequestMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		m.Record(r.URL.Path, rec.status, time.Since(start), start)
	})
}
