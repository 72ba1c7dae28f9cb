// file: pkg/metrics/metrics.go

package metrics

import (
	"net/http"
	"time"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/fx147/release-labeler/pkg/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "release_labeler"

const (
	ResultSkipped = "skipped"
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics 汇总了所有指标，注册在独立的 Registry 上，方便测试。
type Metrics struct {
	registry *prometheus.Registry

	Events          *prometheus.CounterVec
	ResolveDuration *prometheus.HistogramVec
	KindFailures    *prometheus.CounterVec
	Matched         prometheus.Counter
	LabelWrites     *prometheus.CounterVec
}

// New 创建并注册所有指标。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Release change events handled, by change type and result.",
		}, []string{"type", "result"}),
		ResolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of resolving all candidate objects in a namespace.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		KindFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_kind_failures_total",
			Help:      "Failed namespaced list queries, by kind.",
		}, []string{"kind"}),
		Matched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_matched_total",
			Help:      "Unlabeled candidate objects matched to a release.",
		}),
		LabelWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_writes_total",
			Help:      "Finished label writes, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	m.registry.MustRegister(m.Events, m.ResolveDuration, m.KindFailures, m.Matched, m.LabelWrites)
	return m
}

// Registry 返回底层的 prometheus Registry。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent 记录一次事件处理的结果。
func (m *Metrics) ObserveEvent(t labelerv1.ChangeType, result string) {
	m.Events.WithLabelValues(string(t), result).Inc()
}

// ObserveMatched 记录匹配到的候选对象数量。
func (m *Metrics) ObserveMatched(n int) {
	m.Matched.Add(float64(n))
}

// ObserveResolve 实现了 resolver.Observer。
func (m *Metrics) ObserveResolve(_ string, d time.Duration, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.ResolveDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveKindFailure 实现了 resolver.Observer。
func (m *Metrics) ObserveKindFailure(kind string) {
	m.KindFailures.WithLabelValues(kind).Inc()
}

// Report 实现了 report.Reporter，只统计已完成的写入。
// 事件级别的失败已经计入 events_total，这里跳过。
func (m *Metrics) Report(rec report.Record) {
	if rec.Outcome == report.Started || rec.EventLevel() {
		return
	}
	m.LabelWrites.WithLabelValues(rec.Kind, string(rec.Outcome)).Inc()
}
