// file: pkg/reconciler/reconciler.go

package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/fx147/release-labeler/pkg/registry"
	jsonpatch "gomodules.xyz/jsonpatch/v2"
	"golang.org/x/time/rate"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
)

// Interface 是标签调谐器对外的接口。
type Interface interface {
	Reconcile(ctx context.Context, candidate labelerv1.CandidateObject, token string) (*labelerv1.CandidateObject, error)
}

// Options 是 LabelReconciler 的可选配置。
type Options struct {
	Labels labelerv1.LabelKeys
	// OptimisticConcurrency 为 true 时，补丁会带上读取时的 resourceVersion，
	// 对象在读和写之间被修改过会得到 409 Conflict。
	OptimisticConcurrency bool
	// QPS 限制补丁请求速率，0 表示不限制
	QPS   float64
	Burst int
	Clock clock.PassiveClock
}

// LabelReconciler 对一个已匹配的对象执行 "读-合并-写" 的标签补丁。
type LabelReconciler struct {
	registry *registry.Registry
	labels   labelerv1.LabelKeys
	occ      bool
	limiter  *rate.Limiter
	clock    clock.PassiveClock
}

var _ Interface = &LabelReconciler{}

// New 创建一个新的 LabelReconciler。
func New(reg *registry.Registry, opts Options) *LabelReconciler {
	if opts.Labels == (labelerv1.LabelKeys{}) {
		opts.Labels = labelerv1.DefaultLabelKeys()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	r := &LabelReconciler{
		registry: reg,
		labels:   opts.Labels,
		occ:      opts.OptimisticConcurrency,
		clock:    opts.Clock,
	}
	if opts.QPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.QPS), burst)
	}
	return r
}

// Reconcile 重新读取对象，把归属标签和处理标记合并进现有标签，然后提交 JSON patch。
// 调用方负责保证对象还没有这两个标签。所有错误都直接返回，不在这里重试。
func (r *LabelReconciler) Reconcile(ctx context.Context, candidate labelerv1.CandidateObject, token string) (*labelerv1.CandidateObject, error) {
	h, ok := r.registry.HandlerFor(candidate.Kind)
	if !ok {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("kind %q is not registered", candidate.Kind))
	}
	if candidate.Name == "" || candidate.Namespace == "" {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("%s is missing name or namespace", candidate.Kind))
	}

	// 1. 打补丁前重新读取，尽量缩小和 list 快照之间的差距
	fresh, err := h.Get(ctx, candidate.Namespace, candidate.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in namespace %s: %w", candidate.Ref(), candidate.Namespace, err)
	}

	// 2. 构建补丁
	data, err := BuildLabelPatch(fresh, r.labels, token, r.timestamp(), r.occ)
	if err != nil {
		return nil, err
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// 3. 通过该 kind 的绑定提交补丁
	klog.V(4).InfoS("Patching labels", "kind", candidate.Kind, "namespace", candidate.Namespace, "name", candidate.Name, "patch", string(data))
	patched, err := h.Patch(ctx, candidate.Namespace, candidate.Name, types.JSONPatchType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to patch %s in namespace %s: %w", candidate.Ref(), candidate.Namespace, err)
	}
	return patched, nil
}

// timestamp 返回毫秒级 Unix 时间戳。
func (r *LabelReconciler) timestamp() string {
	return strconv.FormatInt(r.clock.Now().UnixMilli(), 10)
}

// BuildLabelPatch 构建写入归属标签的 JSON patch。
//
// 对象已有 labels 时使用 replace，没有 labels 字段时使用 add，
// 因为 API server 不接受对不存在路径的 replace。
// withVersion 为 true 时，先用 add 写入读到的 resourceVersion，
// API server 会把它当作前置条件。
func BuildLabelPatch(fresh *labelerv1.CandidateObject, keys labelerv1.LabelKeys, token, timestamp string, withVersion bool) ([]byte, error) {
	labels := make(map[string]string, len(fresh.Labels)+2)
	for k, v := range fresh.Labels {
		labels[k] = v
	}
	labels[keys.Ownership] = token
	labels[keys.Touched] = timestamp

	var ops []jsonpatch.JsonPatchOperation
	if withVersion && fresh.ResourceVersion != "" {
		ops = append(ops, jsonpatch.NewOperation("add", "/metadata/resourceVersion", fresh.ResourceVersion))
	}
	op := "replace"
	if fresh.Labels == nil {
		op = "add"
	}
	ops = append(ops, jsonpatch.NewOperation(op, "/metadata/labels", labels))

	data, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal label patch: %w", err)
	}
	return data, nil
}
