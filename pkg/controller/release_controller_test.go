package controller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/fx147/release-labeler/pkg/matcher"
	"github.com/fx147/release-labeler/pkg/metrics"
	"github.com/fx147/release-labeler/pkg/reconciler"
	"github.com/fx147/release-labeler/pkg/registry"
	"github.com/fx147/release-labeler/pkg/report"
	"github.com/fx147/release-labeler/pkg/resolver"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/kubernetes/fake"
)

// fakeResolver 返回固定的候选列表，并记录调用次数。
type fakeResolver struct {
	candidates []labelerv1.CandidateObject
	err        error
	calls      atomic.Int32
}

func (r *fakeResolver) Resolve(ctx context.Context, namespace string) ([]labelerv1.CandidateObject, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.candidates, nil
}

// fakeReconciler 记录所有被打补丁的对象，可以让指定名称的对象失败。
type fakeReconciler struct {
	mu      sync.Mutex
	patched []string
	failOn  map[string]error
	delay   time.Duration
}

func (r *fakeReconciler) Reconcile(ctx context.Context, c labelerv1.CandidateObject, token string) (*labelerv1.CandidateObject, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if err, ok := r.failOn[c.Name]; ok {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patched = append(r.patched, c.Name)
	return &c, nil
}

func (r *fakeReconciler) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.patched...)
	sort.Strings(out)
	return out
}

type collectingReporter struct {
	mu      sync.Mutex
	records []report.Record
}

func (c *collectingReporter) Report(rec report.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *collectingReporter) count(outcome report.Outcome) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

func pod(name string, labels map[string]string) labelerv1.CandidateObject {
	return labelerv1.CandidateObject{Kind: "Pod", Name: name, Namespace: "apps", Labels: labels}
}

func webEvent(t labelerv1.ChangeType) labelerv1.ReleaseEvent {
	return labelerv1.ReleaseEvent{ID: "e-1", Type: t, ReleaseName: "web", Namespace: "apps", OwnershipToken: "p-1"}
}

func TestHandleEvent_FiltersAndMatches(t *testing.T) {
	res := &fakeResolver{candidates: []labelerv1.CandidateObject{
		pod("web-0", nil),
		pod("web-1", map[string]string{labelerv1.DefaultOwnershipLabel: "p-0"}),
		pod("web-2", map[string]string{labelerv1.DefaultTouchedLabel: "1"}),
		pod("api-0", nil),
		pod("my-web", map[string]string{"app": "web"}),
	}}
	rec := &fakeReconciler{}
	reporter := &collectingReporter{}
	m := metrics.New()

	c := NewReleaseController(res, matcher.Substring{}, rec, nil, Options{Reporter: reporter, Observer: m})
	require.NoError(t, c.HandleEvent(context.Background(), webEvent(labelerv1.Added)))

	// 已经带标签的对象不会被匹配，也不会被打补丁
	assert.Equal(t, []string{"my-web", "web-0"}, rec.names())
	assert.Equal(t, 2, reporter.count(report.Started))
	assert.Equal(t, 2, reporter.count(report.Succeeded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Matched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("ADDED", metrics.ResultSuccess)))
}

func TestHandleEvent_Skips(t *testing.T) {
	for _, tc := range []struct {
		name  string
		event labelerv1.ReleaseEvent
	}{
		{name: "Deleted", event: webEvent(labelerv1.Deleted)},
		{name: "Other", event: webEvent(labelerv1.Other)},
		{name: "NoToken", event: labelerv1.ReleaseEvent{Type: labelerv1.Modified, ReleaseName: "web", Namespace: "apps"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := &fakeResolver{candidates: []labelerv1.CandidateObject{pod("web-0", nil)}}
			rec := &fakeReconciler{}
			c := NewReleaseController(res, matcher.Substring{}, rec, nil, Options{})

			require.NoError(t, c.HandleEvent(context.Background(), tc.event))
			assert.Zero(t, res.calls.Load(), "resolver should not be called")
			assert.Empty(t, rec.names(), "nothing should be patched")
		})
	}
}

func TestHandleEvent_ResolveFailure(t *testing.T) {
	res := &fakeResolver{err: errors.New("list secrets: forbidden")}
	rec := &fakeReconciler{}
	reporter := &collectingReporter{}
	c := NewReleaseController(res, matcher.Substring{}, rec, nil, Options{Reporter: reporter})

	err := c.HandleEvent(context.Background(), webEvent(labelerv1.Modified))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve objects for release apps/web")
	assert.Empty(t, rec.names())

	// 解析失败也会留下一条事件级别的 Failed 记录
	require.Len(t, reporter.records, 1)
	failed := reporter.records[0]
	assert.Equal(t, report.Failed, failed.Outcome)
	assert.True(t, failed.EventLevel())
	assert.Equal(t, "e-1", failed.EventID)
	assert.Equal(t, "web", failed.Release)
	assert.Equal(t, "apps", failed.Namespace)
	assert.Contains(t, failed.Detail, "list secrets: forbidden")
}

func TestHandleEvent_Isolation(t *testing.T) {
	boom := apierrors.NewConflict(schema.GroupResource{Resource: "pods"}, "web-3", errors.New("modified"))
	res := &fakeResolver{candidates: []labelerv1.CandidateObject{
		pod("web-1", nil), pod("web-2", nil), pod("web-3", nil), pod("web-4", nil),
	}}
	rec := &fakeReconciler{failOn: map[string]error{"web-3": boom}, delay: 10 * time.Millisecond}
	reporter := &collectingReporter{}
	c := NewReleaseController(res, matcher.Substring{}, rec, nil, Options{Reporter: reporter})

	err := c.HandleEvent(context.Background(), webEvent(labelerv1.Added))
	var agg utilerrors.Aggregate
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors(), 1)
	assert.True(t, apierrors.IsConflict(agg.Errors()[0]))

	// 第三个对象失败不影响其他对象
	assert.Equal(t, []string{"web-1", "web-2", "web-4"}, rec.names())
	assert.Equal(t, 3, reporter.count(report.Succeeded))
	assert.Equal(t, 1, reporter.count(report.Failed))
}

func TestHandleEvent_MaxPatchConcurrency(t *testing.T) {
	var inflight, peak atomic.Int32
	res := &fakeResolver{candidates: []labelerv1.CandidateObject{
		pod("web-1", nil), pod("web-2", nil), pod("web-3", nil), pod("web-4", nil), pod("web-5", nil),
	}}
	rec := reconcilerFunc(func(ctx context.Context, c labelerv1.CandidateObject, token string) (*labelerv1.CandidateObject, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return &c, nil
	})

	c := NewReleaseController(res, matcher.Substring{}, rec, nil, Options{MaxPatchConcurrency: 2})
	require.NoError(t, c.HandleEvent(context.Background(), webEvent(labelerv1.Added)))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

type reconcilerFunc func(ctx context.Context, c labelerv1.CandidateObject, token string) (*labelerv1.CandidateObject, error)

func (f reconcilerFunc) Reconcile(ctx context.Context, c labelerv1.CandidateObject, token string) (*labelerv1.CandidateObject, error) {
	return f(ctx, c, token)
}

func TestRun_ErrorsDoNotStopTheLoop(t *testing.T) {
	res := &fakeResolver{candidates: []labelerv1.CandidateObject{pod("web-0", nil), pod("api-0", nil)}}
	rec := &fakeReconciler{failOn: map[string]error{"web-0": errors.New("boom")}}
	c := NewReleaseController(res, matcher.Substring{}, rec, nil, Options{Debug: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 1)
		close(done)
	}()

	// 第一个事件失败，第二个事件仍然会被处理
	c.Enqueue(labelerv1.ReleaseEvent{ID: "1", Type: labelerv1.Added, ReleaseName: "web", Namespace: "apps", OwnershipToken: "p-1"})
	c.Enqueue(labelerv1.ReleaseEvent{ID: "2", Type: labelerv1.Modified, ReleaseName: "api", Namespace: "apps", OwnershipToken: "p-2"})

	require.Eventually(t, func() bool {
		return len(rec.names()) == 1 && res.calls.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"api-0"}, rec.names())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop")
	}
}

// TestHandleEvent_Idempotent 使用真实的 registry、resolver 和 reconciler 跑两遍同一个事件。
func TestHandleEvent_Idempotent(t *testing.T) {
	ctx := context.Background()
	cs := fake.NewSimpleClientset(
		&appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "apps", ResourceVersion: "1", Labels: map[string]string{"app": "web"}}},
		&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: "web-config", Namespace: "apps", ResourceVersion: "1"}},
		&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: "api-config", Namespace: "apps", ResourceVersion: "1"}},
	)
	reg, err := registry.New(cs, nil, registry.Config{BuiltinKinds: []string{"Deployment", "ConfigMap"}})
	require.NoError(t, err)

	c := NewReleaseController(
		resolver.New(reg, resolver.Options{}),
		matcher.Substring{},
		reconciler.New(reg, reconciler.Options{OptimisticConcurrency: true}),
		nil,
		Options{},
	)

	countPatches := func() int {
		n := 0
		for _, a := range cs.Actions() {
			if a.GetVerb() == "patch" {
				n++
			}
		}
		return n
	}

	require.NoError(t, c.HandleEvent(ctx, webEvent(labelerv1.Added)))
	assert.Equal(t, 2, countPatches())

	dep, err := cs.AppsV1().Deployments("apps").Get(ctx, "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "p-1", dep.Labels[labelerv1.DefaultOwnershipLabel])
	assert.Equal(t, "web", dep.Labels["app"])
	assert.NotEmpty(t, dep.Labels[labelerv1.DefaultTouchedLabel])

	api, err := cs.CoreV1().ConfigMaps("apps").Get(ctx, "api-config", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Empty(t, api.Labels)

	// 第二遍不会再打补丁
	require.NoError(t, c.HandleEvent(ctx, webEvent(labelerv1.Modified)))
	assert.Equal(t, 2, countPatches())
}

func TestErrorMessage(t *testing.T) {
	assert.Empty(t, ErrorMessage(nil))
	assert.Equal(t, "plain", ErrorMessage(errors.New("plain")))

	conflict := apierrors.NewConflict(schema.GroupResource{Group: "apps", Resource: "deployments"}, "web", errors.New("modified"))
	msg := ErrorMessage(conflict)
	assert.Contains(t, msg, conflict.Error())
	assert.Contains(t, msg, ": Conflict")

	agg := utilerrors.NewAggregate([]error{errors.New("a"), conflict})
	msg = ErrorMessage(agg)
	assert.Contains(t, msg, "a, ")
	assert.Contains(t, msg, "Conflict")

	assert.Equal(t, "plain", ErrorMessage(utilerrors.NewAggregate([]error{errors.New("plain")})))
}
