// file: pkg/registry/handler.go

package registry

import (
	"context"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/fx147/release-labeler/pkg/util"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
)

// Handler 是某一种对象类型的 API 绑定。
// 每个 kind 在启动时解析出唯一的一个 Handler，之后不再变化。
type Handler interface {
	// Kind 返回该绑定服务的对象类型，例如 "Deployment"
	Kind() string
	// Resource 返回对应的 GVR
	Resource() schema.GroupVersionResource
	// Binding 返回绑定的 API 名称，仅用于展示，例如 "AppsV1" 或 "Dynamic"
	Binding() string

	List(ctx context.Context, namespace string) ([]labelerv1.CandidateObject, error)
	Get(ctx context.Context, namespace, name string) (*labelerv1.CandidateObject, error)
	Patch(ctx context.Context, namespace, name string, pt types.PatchType, data []byte) (*labelerv1.CandidateObject, error)
}

// namespacedClient 是 client-go 生成的 typed client 的公共子集。
// 例如 corev1client.ConfigMapInterface 满足 namespacedClient[*corev1.ConfigMap, *corev1.ConfigMapList]。
type namespacedClient[T runtime.Object, L runtime.Object] interface {
	List(ctx context.Context, opts metav1.ListOptions) (L, error)
	Get(ctx context.Context, name string, opts metav1.GetOptions) (T, error)
	Patch(ctx context.Context, name string, pt types.PatchType, data []byte, opts metav1.PatchOptions, subresources ...string) (T, error)
}

// typedHandler 通过 typed clientset 服务一种内置类型。
type typedHandler[T runtime.Object, L runtime.Object] struct {
	kind     string
	binding  string
	resource schema.GroupVersionResource
	client   func(namespace string) namespacedClient[T, L]
}

var _ Handler = &typedHandler[runtime.Object, runtime.Object]{}

func newTypedHandler[T runtime.Object, L runtime.Object](
	kind, binding string,
	gvr schema.GroupVersionResource,
	client func(namespace string) namespacedClient[T, L],
) Handler {
	return &typedHandler[T, L]{kind: kind, binding: binding, resource: gvr, client: client}
}

func (h *typedHandler[T, L]) Kind() string                          { return h.kind }
func (h *typedHandler[T, L]) Binding() string                       { return h.binding }
func (h *typedHandler[T, L]) Resource() schema.GroupVersionResource { return h.resource }

func (h *typedHandler[T, L]) List(ctx context.Context, namespace string) ([]labelerv1.CandidateObject, error) {
	list, err := h.client(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return util.CandidatesFromList(h.kind, list)
}

func (h *typedHandler[T, L]) Get(ctx context.Context, namespace, name string) (*labelerv1.CandidateObject, error) {
	obj, err := h.client(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	c, err := util.CandidateFromObject(h.kind, obj)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *typedHandler[T, L]) Patch(ctx context.Context, namespace, name string, pt types.PatchType, data []byte) (*labelerv1.CandidateObject, error) {
	obj, err := h.client(namespace).Patch(ctx, name, pt, data, metav1.PatchOptions{})
	if err != nil {
		return nil, err
	}
	c, err := util.CandidateFromObject(h.kind, obj)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// dynamicHandler 通过 dynamic client 服务一种自定义资源。
type dynamicHandler struct {
	kind     string
	resource schema.GroupVersionResource
	client   dynamic.Interface
}

var _ Handler = &dynamicHandler{}

func newDynamicHandler(kind string, gvr schema.GroupVersionResource, client dynamic.Interface) Handler {
	return &dynamicHandler{kind: kind, resource: gvr, client: client}
}

func (h *dynamicHandler) Kind() string                          { return h.kind }
func (h *dynamicHandler) Binding() string                       { return "Dynamic" }
func (h *dynamicHandler) Resource() schema.GroupVersionResource { return h.resource }

func (h *dynamicHandler) List(ctx context.Context, namespace string) ([]labelerv1.CandidateObject, error) {
	list, err := h.client.Resource(h.resource).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return util.CandidatesFromList(h.kind, list)
}

func (h *dynamicHandler) Get(ctx context.Context, namespace, name string) (*labelerv1.CandidateObject, error) {
	obj, err := h.client.Resource(h.resource).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	c, err := util.CandidateFromObject(h.kind, obj)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *dynamicHandler) Patch(ctx context.Context, namespace, name string, pt types.PatchType, data []byte) (*labelerv1.CandidateObject, error) {
	obj, err := h.client.Resource(h.resource).Namespace(namespace).Patch(ctx, name, pt, data, metav1.PatchOptions{})
	if err != nil {
		return nil, err
	}
	c, err := util.CandidateFromObject(h.kind, obj)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
