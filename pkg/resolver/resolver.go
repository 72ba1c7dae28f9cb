// file: pkg/resolver/resolver.go

package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/fx147/release-labeler/pkg/registry"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Policy 决定多个类型的查询结果如何聚合。
type Policy string

const (
	// FailFast 任意一个类型查询失败，整个解析失败，不使用部分结果
	FailFast Policy = "FailFast"
	// BestEffort 忽略失败的类型，返回其余类型的结果
	BestEffort Policy = "BestEffort"
)

// ParsePolicy 解析配置中的策略名称，空字符串表示 FailFast。
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", FailFast:
		return FailFast, nil
	case BestEffort:
		return BestEffort, nil
	default:
		return "", fmt.Errorf("unknown resolve policy %q (expected %s or %s)", s, FailFast, BestEffort)
	}
}

// Observer 接收每次解析的统计信息，可以为 nil。
type Observer interface {
	ObserveResolve(namespace string, d time.Duration, err error)
	ObserveKindFailure(kind string)
}

// Interface 是解析器对外的接口，方便控制器在测试中替换。
type Interface interface {
	Resolve(ctx context.Context, namespace string) ([]labelerv1.CandidateObject, error)
}

// Options 是 Resolver 的可选配置。
type Options struct {
	Policy Policy
	// MaxConcurrency 限制同时进行的 list 请求数，0 表示不限制
	MaxConcurrency int
	Observer       Observer
}

// Resolver 在一个命名空间中并发查询所有注册的类型，并汇总成一个候选列表。
type Resolver struct {
	registry *registry.Registry
	opts     Options
}

var _ Interface = &Resolver{}

// New 创建一个新的 Resolver。
func New(reg *registry.Registry, opts Options) *Resolver {
	if opts.Policy == "" {
		opts.Policy = FailFast
	}
	return &Resolver{registry: reg, opts: opts}
}

// Resolve 返回命名空间中所有注册类型的对象，按注册顺序排列。
// 没有命名空间时直接返回空列表，不发任何请求。
func (r *Resolver) Resolve(ctx context.Context, namespace string) ([]labelerv1.CandidateObject, error) {
	if namespace == "" {
		return nil, nil
	}

	start := time.Now()
	candidates, err := r.resolve(ctx, namespace)
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveResolve(namespace, time.Since(start), err)
	}
	return candidates, err
}

func (r *Resolver) resolve(ctx context.Context, namespace string) ([]labelerv1.CandidateObject, error) {
	handlers := r.registry.Handlers()
	// 每个类型写自己的槽位，最后按顺序拼接，保证输出稳定
	results := make([][]labelerv1.CandidateObject, len(handlers))

	var (
		eg    *errgroup.Group
		egctx = ctx
	)
	if r.opts.Policy == FailFast {
		// 第一个失败会取消其余请求
		eg, egctx = errgroup.WithContext(ctx)
	} else {
		eg = &errgroup.Group{}
	}
	if r.opts.MaxConcurrency > 0 {
		eg.SetLimit(r.opts.MaxConcurrency)
	}

	var (
		mu     sync.Mutex
		failed []string
	)

	for i, h := range handlers {
		eg.Go(func() error {
			items, err := h.List(egctx, namespace)
			if err != nil {
				if r.opts.Observer != nil {
					r.opts.Observer.ObserveKindFailure(h.Kind())
				}
				err = fmt.Errorf("failed to list %s in namespace %s: %w", h.Kind(), namespace, err)
				if r.opts.Policy == BestEffort {
					klog.Warningf("Skipping kind %s: %v", h.Kind(), err)
					mu.Lock()
					failed = append(failed, h.Kind())
					mu.Unlock()
					return nil
				}
				return err
			}
			results[i] = items
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(failed) > 0 {
		klog.V(2).InfoS("Resolved partial candidate list", "namespace", namespace, "failedKinds", failed)
	}

	var candidates []labelerv1.CandidateObject
	for _, items := range results {
		candidates = append(candidates, items...)
	}
	return candidates, nil
}
