// Package metrics keeps process-wide counters for the cipher service and
// renders them in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type collector interface {
	write(sb *strings.Builder)
}

type counterVec struct {
	name   string
	help   string
	labels []string

	mu     sync.RWMutex
	values map[string]float64
}

type histogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu     sync.RWMutex
	values map[string]*histogramValue
}

type histogramValue struct {
	counts []uint64
	sum    float64
	total  uint64
}

var (
	rpcRequests   = newCounterVec("magiccipher_rpc_requests_total", "Total number of RPC requests handled.", []string{"method"})
	rpcErrors     = newCounterVec("magiccipher_rpc_errors_total", "Total number of RPC requests that returned an error.", []string{"method", "code"})
	rpcLatency    = newHistogramVec("magiccipher_rpc_duration_seconds", "Latency of RPC handlers by method and status code.", []string{"method", "code"}, latencyBuckets)
	keysIssued    = newCounterVec("magiccipher_keys_issued_total", "Number of keys issued by encryption.", []string{"mode", "encoding"})
	keyRejections = newCounterVec("magiccipher_key_rejections_total", "Number of keys rejected during decryption.", []string{"kind"})
	squareOrders  = newHistogramVec("magiccipher_square_order", "Order of the magic squares built for keys.", nil, orderBuckets)

	collectors = []collector{rpcRequests, rpcErrors, rpcLatency, keysIssued, keyRejections, squareOrders}

	totalRequests uint64
)

func newCounterVec(name, help string, labels []string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[string]float64)}
}

var (
	latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	orderBuckets   = []float64{3, 4, 5, 8, 16, 32, 64, 128, 256}
)

func newHistogramVec(name, help string, labels []string, buckets []float64) *histogramVec {
	return &histogramVec{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		values:  make(map[string]*histogramValue),
	}
}

func labelKey(labels, values []string) string {
	if len(values) != len(labels) {
		panic(fmt.Sprintf("expected %d labels, got %d", len(labels), len(values)))
	}
	return strings.Join(values, ",")
}

func (cv *counterVec) add(delta float64, values ...string) {
	key := labelKey(cv.labels, values)
	cv.mu.Lock()
	cv.values[key] += delta
	cv.mu.Unlock()
}

func (cv *counterVec) value(values ...string) float64 {
	key := labelKey(cv.labels, values)
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	return cv.values[key]
}

func (cv *counterVec) write(sb *strings.Builder) {
	writeHeader(sb, cv.name, cv.help, "counter")
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	for _, key := range sortedKeys(cv.values) {
		sb.WriteString(cv.name)
		writeLabels(sb, cv.labels, key, "")
		fmt.Fprintf(sb, " %g\n", cv.values[key])
	}
}

func (hv *histogramVec) observe(values []string, sample float64) {
	key := labelKey(hv.labels, values)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	entry, ok := hv.values[key]
	if !ok {
		entry = &histogramValue{counts: make([]uint64, len(hv.buckets)+1)}
		hv.values[key] = entry
	}
	entry.sum += sample
	entry.total++
	idx := sort.SearchFloat64s(hv.buckets, sample)
	entry.counts[idx]++
}

func (hv *histogramVec) write(sb *strings.Builder) {
	writeHeader(sb, hv.name, hv.help, "histogram")
	hv.mu.RLock()
	defer hv.mu.RUnlock()
	for _, key := range sortedKeys(hv.values) {
		entry := hv.values[key]
		cumulative := uint64(0)
		for i, upper := range hv.buckets {
			cumulative += entry.counts[i]
			sb.WriteString(hv.name + "_bucket")
			writeLabels(sb, hv.labels, key, fmt.Sprintf("le=\"%g\"", upper))
			fmt.Fprintf(sb, " %d\n", cumulative)
		}
		cumulative += entry.counts[len(hv.buckets)]
		sb.WriteString(hv.name + "_bucket")
		writeLabels(sb, hv.labels, key, "le=\"+Inf\"")
		fmt.Fprintf(sb, " %d\n", cumulative)

		sb.WriteString(hv.name + "_sum")
		writeLabels(sb, hv.labels, key, "")
		fmt.Fprintf(sb, " %g\n", entry.sum)
		sb.WriteString(hv.name + "_count")
		writeLabels(sb, hv.labels, key, "")
		fmt.Fprintf(sb, " %d\n", entry.total)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeLabels renders {a="x",b="y"} for the joined key plus an optional
// trailing pair such as le="0.5". Nothing is written when both are empty.
func writeLabels(sb *strings.Builder, labels []string, key, extra string) {
	if len(labels) == 0 && extra == "" {
		return
	}
	pairs := make([]string, 0, len(labels)+1)
	if len(labels) > 0 {
		parts := strings.Split(key, ",")
		for i, label := range labels {
			pairs = append(pairs, label+"=\""+escapeLabel(parts[i])+"\"")
		}
	}
	if extra != "" {
		pairs = append(pairs, extra)
	}
	sb.WriteString("{" + strings.Join(pairs, ",") + "}")
}

func writeHeader(sb *strings.Builder, name, help, metricType string) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, metricType)
}

func escapeLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return strings.ReplaceAll(value, "\"", "\\\"")
}

// Handler exposes the metrics registry as an http.Handler compatible with Prometheus.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var sb strings.Builder
		for _, c := range collectors {
			c.write(&sb)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(sb.String()))
	})
}

// RecordRPC counts one served call and its latency. An empty or "OK" code
// is not counted as an error.
func RecordRPC(method, code string, dur time.Duration) {
	method = sanitize(method)
	rpcRequests.add(1, method)
	atomic.AddUint64(&totalRequests, 1)
	if code != "" && code != "OK" {
		rpcErrors.add(1, method, code)
	}
	if code == "" {
		code = "OK"
	}
	rpcLatency.observe([]string{method, code}, dur.Seconds())
}

// RecordKeyIssued counts a key produced by encryption along with the order of
// the square behind it.
func RecordKeyIssued(mode, encoding string, order int) {
	keysIssued.add(1, sanitize(mode), sanitize(encoding))
	squareOrders.observe(nil, float64(order))
}

// RecordKeyRejection counts a decryption refused because of its key.
func RecordKeyRejection(kind string) {
	keyRejections.add(1, sanitize(kind))
}

// TotalRequests returns the total number of RPC requests served since process start.
func TotalRequests() uint64 {
	return atomic.LoadUint64(&totalRequests)
}

func sanitize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return strings.ReplaceAll(v, ",", "_")
}
