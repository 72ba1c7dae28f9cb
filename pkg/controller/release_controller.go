// file: pkg/controller/release_controller.go

package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/fx147/release-labeler/pkg/informer"
	"github.com/fx147/release-labeler/pkg/matcher"
	"github.com/fx147/release-labeler/pkg/metrics"
	"github.com/fx147/release-labeler/pkg/reconciler"
	"github.com/fx147/release-labeler/pkg/report"
	"github.com/fx147/release-labeler/pkg/resolver"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"
)

// Observer 接收事件处理的统计信息，*metrics.Metrics 实现了它。
type Observer interface {
	ObserveEvent(t labelerv1.ChangeType, result string)
	ObserveMatched(n int)
}

// Options 是 ReleaseController 的可选配置。
type Options struct {
	Labels labelerv1.LabelKeys
	// MaxPatchConcurrency 限制一个事件内同时进行的标签写入数，0 表示不限制
	MaxPatchConcurrency int
	// Debug 为 true 时打印完整的错误信息
	Debug    bool
	Reporter report.Reporter
	Observer Observer
}

// ReleaseController 负责监听 release 的变更，
// 并把归属标签写到属于该 release 的下游对象上。
type ReleaseController struct {
	resolver   resolver.Interface
	matcher    matcher.Matcher
	reconciler reconciler.Interface

	// releaseInformer 可以为 nil，这时只能通过 Enqueue 投递事件
	releaseInformer informer.Informer

	opts Options

	// queue 是一个普通工作队列。这里不使用限速队列，
	// 失败的事件不会重新入队，等待下一次变更或 resync。
	queue workqueue.TypedInterface[labelerv1.ReleaseEvent]
}

// NewReleaseController 创建一个新的控制器实例。
func NewReleaseController(
	res resolver.Interface,
	m matcher.Matcher,
	rec reconciler.Interface,
	releaseInformer informer.Informer,
	opts Options,
) *ReleaseController {
	if opts.Labels == (labelerv1.LabelKeys{}) {
		opts.Labels = labelerv1.DefaultLabelKeys()
	}
	if opts.Reporter == nil {
		opts.Reporter = report.Discard
	}

	c := &ReleaseController{
		resolver:        res,
		matcher:         m,
		reconciler:      rec,
		releaseInformer: releaseInformer,
		opts:            opts,
		queue: workqueue.NewTypedWithConfig(workqueue.TypedQueueConfig[labelerv1.ReleaseEvent]{
			Name: "release",
		}),
	}

	// EventHandler 的唯一职责就是将事件推入队列。
	if releaseInformer != nil {
		releaseInformer.AddEventHandler(informer.EventHandlerFunc(c.Enqueue))
	}

	return c
}

// Enqueue 将一个 release 事件添加到工作队列中。
func (c *ReleaseController) Enqueue(event labelerv1.ReleaseEvent) {
	c.queue.Add(event)
}

// Run 启动控制器的主工作循环，直到 ctx 结束。
// Informer 应该在控制器外部被启动和管理。
func (c *ReleaseController) Run(ctx context.Context, workers int) {
	defer utilruntime.HandleCrash()
	defer c.queue.ShutDown()

	klog.Info("Starting release controller")
	defer klog.Info("Shutting down release controller")

	if c.releaseInformer != nil {
		klog.Info("Waiting for informer caches to sync...")
		if !cache.WaitForCacheSync(ctx.Done(), c.releaseInformer.HasSynced) {
			utilruntime.HandleError(fmt.Errorf("timed out waiting for caches to sync"))
			return
		}
	}

	if workers <= 0 {
		workers = 1
	}
	klog.Infof("Starting %d workers", workers)
	for i := 0; i < workers; i++ {
		go wait.UntilWithContext(ctx, c.runWorker, time.Second)
	}

	<-ctx.Done()
}

// runWorker 是一个持续运行的循环，负责从队列中消费事件并处理。
func (c *ReleaseController) runWorker(ctx context.Context) {
	for c.processNextWorkItem(ctx) {
	}
}

// processNextWorkItem 从队列中取出一个事件，并调用 HandleEvent 来处理它。
func (c *ReleaseController) processNextWorkItem(ctx context.Context) bool {
	event, quit := c.queue.Get()
	if quit {
		return false
	}
	defer c.queue.Done(event)

	err := c.HandleEvent(ctx, event)
	c.handleErr(err, event)

	return true
}

// handleErr 报告错误后直接丢弃，错误永远不会中断 watch 循环。
func (c *ReleaseController) handleErr(err error, event labelerv1.ReleaseEvent) {
	if err == nil {
		return
	}

	klog.Errorf("Failed to handle release event %s: %s", event, ErrorMessage(err))
	if c.opts.Debug {
		klog.ErrorS(err, "Release event failed", "event", event.ID, "release", event.ReleaseName,
			"namespace", event.Namespace, "detail", fmt.Sprintf("%+v", err))
	}
}

// HandleEvent 处理一个 release 事件：解析候选对象，过滤已处理的对象，
// 判断归属，然后并发写入标签并等待全部完成。
func (c *ReleaseController) HandleEvent(ctx context.Context, event labelerv1.ReleaseEvent) error {
	if !event.Type.Reconcilable() {
		c.observeEvent(event.Type, metrics.ResultSkipped)
		return nil
	}
	if event.OwnershipToken == "" {
		// release 上还没有 token，等它被打上之后的下一次变更
		klog.V(4).InfoS("Skipping release without ownership token", "release", event.ReleaseName, "namespace", event.Namespace)
		c.observeEvent(event.Type, metrics.ResultSkipped)
		return nil
	}

	klog.V(2).InfoS("Handling release event", "event", event.ID, "type", event.Type,
		"release", event.ReleaseName, "namespace", event.Namespace)

	candidates, err := c.resolver.Resolve(ctx, event.Namespace)
	if err != nil {
		c.observeEvent(event.Type, metrics.ResultFailure)
		err = fmt.Errorf("failed to resolve objects for release %s/%s: %w", event.Namespace, event.ReleaseName, err)
		c.reportEventFailure(event, err)
		return err
	}

	var owned []labelerv1.CandidateObject
	for _, candidate := range candidates {
		// 已经带有归属标签或处理标记的对象不再参与匹配
		if c.opts.Labels.Labeled(candidate.Labels) {
			continue
		}
		if c.matcher.IsOwned(event.ReleaseName, candidate) {
			owned = append(owned, candidate)
		}
	}
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveMatched(len(owned))
	}

	if err := utilerrors.NewAggregate(c.labelAll(ctx, event, owned)); err != nil {
		c.observeEvent(event.Type, metrics.ResultFailure)
		return err
	}

	c.observeEvent(event.Type, metrics.ResultSuccess)
	return nil
}

// labelAll 并发写入标签。一个对象失败不会取消其他对象。
func (c *ReleaseController) labelAll(ctx context.Context, event labelerv1.ReleaseEvent, owned []labelerv1.CandidateObject) []error {
	errs := make([]error, len(owned))

	eg := &errgroup.Group{}
	if c.opts.MaxPatchConcurrency > 0 {
		eg.SetLimit(c.opts.MaxPatchConcurrency)
	}
	for i, candidate := range owned {
		eg.Go(func() error {
			errs[i] = c.label(ctx, event, candidate)
			return nil
		})
	}
	_ = eg.Wait()

	return errs
}

func (c *ReleaseController) label(ctx context.Context, event labelerv1.ReleaseEvent, candidate labelerv1.CandidateObject) error {
	rec := report.NewRecord(report.Started)
	rec.EventID = event.ID
	rec.Release = event.ReleaseName
	rec.Namespace = candidate.Namespace
	rec.Kind = candidate.Kind
	rec.Name = candidate.Name
	rec.Token = event.OwnershipToken
	c.opts.Reporter.Report(rec)

	_, err := c.reconciler.Reconcile(ctx, candidate, event.OwnershipToken)

	rec.Time = time.Now()
	if err != nil {
		rec.Outcome = report.Failed
		rec.Detail = ErrorMessage(err)
		c.opts.Reporter.Report(rec)
		return err
	}
	rec.Outcome = report.Succeeded
	c.opts.Reporter.Report(rec)
	return nil
}

// reportEventFailure 为整个事件写一条不带对象的 Failed 记录。
func (c *ReleaseController) reportEventFailure(event labelerv1.ReleaseEvent, err error) {
	rec := report.NewRecord(report.Failed)
	rec.EventID = event.ID
	rec.Release = event.ReleaseName
	rec.Namespace = event.Namespace
	rec.Token = event.OwnershipToken
	rec.Detail = ErrorMessage(err)
	c.opts.Reporter.Report(rec)
}

func (c *ReleaseController) observeEvent(t labelerv1.ChangeType, result string) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveEvent(t, result)
	}
}

// ErrorMessage 组合错误信息和 API 返回体中的信息，用 ": " 连接。
// 聚合错误会逐个展开。
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var agg utilerrors.Aggregate
	if errors.As(err, &agg) {
		if len(agg.Errors()) == 1 {
			return ErrorMessage(agg.Errors()[0])
		}
		msgs := make([]string, 0, len(agg.Errors()))
		for _, e := range agg.Errors() {
			msgs = append(msgs, ErrorMessage(e))
		}
		return "[" + strings.Join(msgs, ", ") + "]"
	}

	msg := err.Error()
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		s := status.Status()
		switch {
		case s.Message != "" && !strings.Contains(msg, s.Message):
			return msg + ": " + s.Message
		case s.Reason != "":
			return msg + ": " + string(s.Reason)
		}
	}
	return msg
}
