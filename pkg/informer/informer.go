// file: pkg/informer/informer.go

package informer

import (
	"fmt"
	"sync"
	"time"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/api/meta"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"
	"k8s.io/klog/v2"
)

// EventHandler 接收由 release 变更转换而来的事件。
type EventHandler interface {
	OnEvent(event labelerv1.ReleaseEvent)
}

// EventHandlerFunc 允许把普通函数当作 EventHandler 使用。
type EventHandlerFunc func(event labelerv1.ReleaseEvent)

func (f EventHandlerFunc) OnEvent(event labelerv1.ReleaseEvent) { f(event) }

// Informer 监听 release 资源的变更，并调用事件处理器。
// watch 的建立、重连和周期性 resync 都交给 client-go。
type Informer interface {
	// AddEventHandler 注册一个事件处理器。
	AddEventHandler(handler EventHandler)
	// Run 启动 Informer 的主循环，直到 stopCh 关闭。
	Run(stopCh <-chan struct{})
	// HasSynced 返回初始 list 是否已经完成。
	HasSynced() bool
}

// Options 是 Informer 的配置。
type Options struct {
	Release labelerv1.ReleaseResource
	// Namespace 为空表示监听所有命名空间
	Namespace    string
	ResyncPeriod time.Duration
	// TokenLabel 是 release 对象上携带归属 token 的标签
	TokenLabel string
}

// informer 是 Informer 接口的具体实现。
type informer struct {
	opts    Options
	factory dynamicinformer.DynamicSharedInformerFactory
	shared  cache.SharedIndexInformer

	// --- 事件分发 ---
	handlers    []EventHandler
	handlerLock sync.RWMutex
}

// NewInformer 创建一个新的 Informer 实例。
func NewInformer(client dynamic.Interface, opts Options) (Informer, error) {
	if opts.TokenLabel == "" {
		opts.TokenLabel = labelerv1.DefaultOwnershipLabel
	}

	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(client, opts.ResyncPeriod, opts.Namespace, nil)
	inf := &informer{
		opts:    opts,
		factory: factory,
		shared:  factory.ForResource(opts.Release.GroupVersionResource()).Informer(),
	}

	_, err := inf.shared.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			inf.handle(labelerv1.Added, obj)
		},
		UpdateFunc: func(_, newObj interface{}) {
			// resync 也会走到这里
			inf.handle(labelerv1.Modified, newObj)
		},
		DeleteFunc: func(obj interface{}) {
			inf.handle(labelerv1.Deleted, obj)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add event handler for %s: %w", opts.Release.GroupVersionResource(), err)
	}

	return inf, nil
}

func (i *informer) AddEventHandler(handler EventHandler) {
	i.handlerLock.Lock()
	defer i.handlerLock.Unlock()
	i.handlers = append(i.handlers, handler)
}

func (i *informer) HasSynced() bool {
	return i.shared.HasSynced()
}

func (i *informer) Run(stopCh <-chan struct{}) {
	klog.Infof("Starting informer for %s", i.opts.Release.GroupVersionResource())

	i.factory.Start(stopCh)

	// 等待 stopCh 关闭
	<-stopCh
	i.factory.Shutdown()
	klog.Infof("Shutting down informer...")
}

// handle 把 informer 的通知转换成 ReleaseEvent 并分发。
func (i *informer) handle(t labelerv1.ChangeType, obj interface{}) {
	event, err := EventFromObject(t, obj, i.opts.TokenLabel)
	if err != nil {
		utilruntime.HandleError(err)
		return
	}
	i.distribute(event)
}

// distribute 将一个事件分发给所有已注册的处理器。
func (i *informer) distribute(event labelerv1.ReleaseEvent) {
	i.handlerLock.RLock()
	defer i.handlerLock.RUnlock()

	for _, handler := range i.handlers {
		handler.OnEvent(event)
	}
}

// EventFromObject 从 release 对象中提取事件信息。
// 删除通知可能带着 tombstone，需要先拆开。
func EventFromObject(t labelerv1.ChangeType, obj interface{}, tokenLabel string) (labelerv1.ReleaseEvent, error) {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}

	accessor, err := meta.Accessor(obj)
	if err != nil {
		return labelerv1.ReleaseEvent{}, fmt.Errorf("unexpected release object %T: %w", obj, err)
	}

	return labelerv1.ReleaseEvent{
		ID:             uuid.NewString(),
		Type:           t,
		ReleaseName:    accessor.GetName(),
		Namespace:      accessor.GetNamespace(),
		OwnershipToken: accessor.GetLabels()[tokenLabel],
	}, nil
}
