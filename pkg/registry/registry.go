// file: pkg/registry/registry.go

package registry

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

// CustomResource 是一条自定义资源的注册信息。
type CustomResource struct {
	Group   string `mapstructure:"group" json:"group"`
	Version string `mapstructure:"version" json:"version"`
	Plural  string `mapstructure:"plural" json:"plural"`
	Kind    string `mapstructure:"kind" json:"kind"`
}

// GroupVersionResource 返回自定义资源的 GVR。
func (c CustomResource) GroupVersionResource() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: c.Group, Version: c.Version, Resource: c.Plural}
}

func (c CustomResource) validate() error {
	var missing []string
	if c.Group == "" {
		missing = append(missing, "group")
	}
	if c.Version == "" {
		missing = append(missing, "version")
	}
	if c.Plural == "" {
		missing = append(missing, "plural")
	}
	if c.Kind == "" {
		missing = append(missing, "kind")
	}
	if len(missing) > 0 {
		return fmt.Errorf("custom resource %+v is missing %s", c, strings.Join(missing, ", "))
	}
	return nil
}

// Config 是 Registry 的静态配置，在进程启动时加载。
type Config struct {
	// BuiltinKinds 是要扫描的内置类型，为空时使用 DefaultBuiltinKinds()
	BuiltinKinds []string
	// CustomResources 是要扫描的自定义资源
	CustomResources []CustomResource
}

// Registry 是 "需要扫描哪些类型" 的唯一来源。
// 它在 New 中一次性构建，之后只读，所以并发读取不需要加锁。
type Registry struct {
	kinds    []string // 保持注册顺序，解析结果按这个顺序输出
	handlers map[string]Handler
}

// New 根据配置解析出每个 kind 的 Handler。
// 一个 kind 只能绑定到一个 API，重复绑定会返回错误。
func New(cs kubernetes.Interface, dyn dynamic.Interface, cfg Config) (*Registry, error) {
	builtins := cfg.BuiltinKinds
	if len(builtins) == 0 {
		builtins = defaultBuiltinKinds
	}

	r := &Registry{handlers: make(map[string]Handler)}

	for _, kind := range builtins {
		b, ok := builtinKinds[kind]
		if !ok {
			return nil, fmt.Errorf("unsupported built-in kind %q", kind)
		}
		if cs == nil {
			return nil, fmt.Errorf("built-in kind %q requires a kubernetes clientset", kind)
		}
		if err := r.add(b.newHandler(kind, b, cs)); err != nil {
			return nil, err
		}
	}

	for _, cr := range cfg.CustomResources {
		if err := cr.validate(); err != nil {
			return nil, err
		}
		if dyn == nil {
			return nil, fmt.Errorf("custom resource kind %q requires a dynamic client", cr.Kind)
		}
		if err := r.add(newDynamicHandler(cr.Kind, cr.GroupVersionResource(), dyn)); err != nil {
			return nil, err
		}
	}

	klog.V(2).InfoS("Resource registry initialized", "kinds", r.kinds)
	return r, nil
}

func (r *Registry) add(h Handler) error {
	if existing, ok := r.handlers[h.Kind()]; ok {
		return fmt.Errorf("kind %q already bound to %s (%s), cannot bind to %s (%s)",
			h.Kind(), existing.Binding(), existing.Resource(), h.Binding(), h.Resource())
	}
	r.handlers[h.Kind()] = h
	r.kinds = append(r.kinds, h.Kind())
	return nil
}

// Kinds 返回所有注册的 kind，按注册顺序。
func (r *Registry) Kinds() []string {
	out := make([]string, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Handlers 返回所有 Handler，按注册顺序。
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, 0, len(r.kinds))
	for _, kind := range r.kinds {
		out = append(out, r.handlers[kind])
	}
	return out
}

// HandlerFor 返回 kind 对应的 Handler。
func (r *Registry) HandlerFor(kind string) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// NewFromHandlers 直接用一组 Handler 构建 Registry，
// 用于接入 client-go 之外的 API 绑定，也方便测试。
func NewFromHandlers(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		if err := r.add(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}
