// file: pkg/registry/builtin.go

package registry

import (
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes"
)

// builtinBinding 描述一个内置类型由哪个 typed API 服务。
type builtinBinding struct {
	binding  string
	resource schema.GroupVersionResource
	// newHandler 在启动时调用一次，之后不再调用
	newHandler func(kind string, b builtinBinding, cs kubernetes.Interface) Handler
}

var (
	coreV1       = schema.GroupVersion{Version: "v1"}
	appsV1       = appsv1.SchemeGroupVersion
	batchV1      = batchv1.SchemeGroupVersion
	networkingV1 = networkingv1.SchemeGroupVersion
)

// builtinKinds 是所有支持的内置类型。新增一种类型只需要在这里加一行。
var builtinKinds = map[string]builtinBinding{
	"ConfigMap": {
		binding:  "CoreV1",
		resource: coreV1.WithResource("configmaps"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*corev1.ConfigMap, *corev1.ConfigMapList] {
					return cs.CoreV1().ConfigMaps(ns)
				})
		},
	},
	"PersistentVolumeClaim": {
		binding:  "CoreV1",
		resource: coreV1.WithResource("persistentvolumeclaims"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*corev1.PersistentVolumeClaim, *corev1.PersistentVolumeClaimList] {
					return cs.CoreV1().PersistentVolumeClaims(ns)
				})
		},
	},
	"Pod": {
		binding:  "CoreV1",
		resource: coreV1.WithResource("pods"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*corev1.Pod, *corev1.PodList] {
					return cs.CoreV1().Pods(ns)
				})
		},
	},
	"Secret": {
		binding:  "CoreV1",
		resource: coreV1.WithResource("secrets"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*corev1.Secret, *corev1.SecretList] {
					return cs.CoreV1().Secrets(ns)
				})
		},
	},
	"Service": {
		binding:  "CoreV1",
		resource: coreV1.WithResource("services"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*corev1.Service, *corev1.ServiceList] {
					return cs.CoreV1().Services(ns)
				})
		},
	},
	"ServiceAccount": {
		binding:  "CoreV1",
		resource: coreV1.WithResource("serviceaccounts"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*corev1.ServiceAccount, *corev1.ServiceAccountList] {
					return cs.CoreV1().ServiceAccounts(ns)
				})
		},
	},
	"ControllerRevision": {
		binding:  "AppsV1",
		resource: appsV1.WithResource("controllerrevisions"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*appsv1.ControllerRevision, *appsv1.ControllerRevisionList] {
					return cs.AppsV1().ControllerRevisions(ns)
				})
		},
	},
	"DaemonSet": {
		binding:  "AppsV1",
		resource: appsV1.WithResource("daemonsets"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*appsv1.DaemonSet, *appsv1.DaemonSetList] {
					return cs.AppsV1().DaemonSets(ns)
				})
		},
	},
	"Deployment": {
		binding:  "AppsV1",
		resource: appsV1.WithResource("deployments"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*appsv1.Deployment, *appsv1.DeploymentList] {
					return cs.AppsV1().Deployments(ns)
				})
		},
	},
	"ReplicaSet": {
		binding:  "AppsV1",
		resource: appsV1.WithResource("replicasets"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*appsv1.ReplicaSet, *appsv1.ReplicaSetList] {
					return cs.AppsV1().ReplicaSets(ns)
				})
		},
	},
	"StatefulSet": {
		binding:  "AppsV1",
		resource: appsV1.WithResource("statefulsets"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*appsv1.StatefulSet, *appsv1.StatefulSetList] {
					return cs.AppsV1().StatefulSets(ns)
				})
		},
	},
	"Job": {
		binding:  "BatchV1",
		resource: batchV1.WithResource("jobs"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*batchv1.Job, *batchv1.JobList] {
					return cs.BatchV1().Jobs(ns)
				})
		},
	},
	"CronJob": {
		binding:  "BatchV1",
		resource: batchV1.WithResource("cronjobs"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*batchv1.CronJob, *batchv1.CronJobList] {
					return cs.BatchV1().CronJobs(ns)
				})
		},
	},
	"Ingress": {
		binding:  "NetworkingV1",
		resource: networkingV1.WithResource("ingresses"),
		newHandler: func(kind string, b builtinBinding, cs kubernetes.Interface) Handler {
			return newTypedHandler(kind, b.binding, b.resource,
				func(ns string) namespacedClient[*networkingv1.Ingress, *networkingv1.IngressList] {
					return cs.NetworkingV1().Ingresses(ns)
				})
		},
	},
}

// defaultBuiltinKinds 是默认启用的内置类型，也就是一次 helm 部署最常产出的对象。
var defaultBuiltinKinds = []string{
	"ConfigMap",
	"ControllerRevision",
	"Deployment",
	"Ingress",
	"PersistentVolumeClaim",
	"Pod",
	"ReplicaSet",
	"Secret",
	"Service",
	"StatefulSet",
}

// BuiltinKind 是内置类型表中的一行，用于展示。
type BuiltinKind struct {
	Kind     string
	Binding  string
	Resource schema.GroupVersionResource
}

// DefaultBuiltinKinds 返回默认启用的内置类型。
func DefaultBuiltinKinds() []string {
	out := make([]string, len(defaultBuiltinKinds))
	copy(out, defaultBuiltinKinds)
	return out
}

// SupportedBuiltinKinds 返回所有支持的内置类型，按 kind 排序。
func SupportedBuiltinKinds() []BuiltinKind {
	out := make([]BuiltinKind, 0, len(builtinKinds))
	for kind, b := range builtinKinds {
		out = append(out, BuiltinKind{Kind: kind, Binding: b.binding, Resource: b.resource})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
