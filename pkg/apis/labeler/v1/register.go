// file: pkg/apis/labeler/v1/register.go

package v1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	// DefaultReleaseGroup 是被监听的 release 资源所在的 API Group
	DefaultReleaseGroup = "helm.fluxcd.io"
	// DefaultReleaseVersion 是 release 资源的版本
	DefaultReleaseVersion = "v1"
	// DefaultReleasePlural 是 release 资源的复数名称
	DefaultReleasePlural = "helmreleases"

	// DefaultOwnershipLabel 是写到下游对象上的归属标签，
	// 同时也是从 release 对象上读取归属 token 的标签。
	DefaultOwnershipLabel = "io.cattle.field/appId"
	// DefaultLabelNamespace 是本工具自己的标签前缀
	DefaultLabelNamespace = "dev.siliconhills.helm2cattle"
	// DefaultTouchedLabel 标记一个对象已经被本工具处理过
	DefaultTouchedLabel = DefaultLabelNamespace + "/touched"
)

// ReleaseResource 描述了需要监听的 release 资源。
type ReleaseResource struct {
	Group   string `mapstructure:"group" json:"group"`
	Version string `mapstructure:"version" json:"version"`
	Plural  string `mapstructure:"plural" json:"plural"`
}

// DefaultReleaseResource 返回 Flux HelmRelease 的默认定义。
func DefaultReleaseResource() ReleaseResource {
	return ReleaseResource{
		Group:   DefaultReleaseGroup,
		Version: DefaultReleaseVersion,
		Plural:  DefaultReleasePlural,
	}
}

// GroupVersionResource 将 ReleaseResource 转换为 client-go 使用的 GVR。
func (r ReleaseResource) GroupVersionResource() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: r.Group, Version: r.Version, Resource: r.Plural}
}

// LabelKeys 汇总了所有用到的标签 key。
type LabelKeys struct {
	// Ownership 是写到下游对象上的归属标签
	Ownership string `mapstructure:"ownership" json:"ownership"`
	// Touched 是处理标记
	Touched string `mapstructure:"touched" json:"touched"`
	// Token 是 release 对象上携带归属 token 的标签
	Token string `mapstructure:"token" json:"token"`
}

// DefaultLabelKeys 返回默认的标签 key。
func DefaultLabelKeys() LabelKeys {
	return LabelKeys{
		Ownership: DefaultOwnershipLabel,
		Touched:   DefaultTouchedLabel,
		Token:     DefaultOwnershipLabel,
	}
}

// Labeled 判断一个标签集合是否已经带有归属标签或处理标记。
// 带有任意一个的对象都不会再被匹配或打补丁。
func (k LabelKeys) Labeled(labels map[string]string) bool {
	if _, ok := labels[k.Touched]; ok {
		return true
	}
	_, ok := labels[k.Ownership]
	return ok
}
