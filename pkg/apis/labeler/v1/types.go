// file: pkg/apis/labeler/v1/types.go

package v1

import (
	"fmt"
	"strings"
)

// ChangeType 定义了 release 变更事件的类型
type ChangeType string

const (
	Added    ChangeType = "ADDED"
	Modified ChangeType = "MODIFIED"
	Deleted  ChangeType = "DELETED"
	// Other 覆盖 watch 流上其余的事件类型，例如 BOOKMARK 和 ERROR
	Other ChangeType = "OTHER"
)

// Reconcilable 只有 Added 和 Modified 事件会触发调谐。
func (t ChangeType) Reconcilable() bool {
	return t == Added || t == Modified
}

// ReleaseEvent 是一次 release 变更通知，处理完即丢弃。
type ReleaseEvent struct {
	// ID 用于关联同一事件产生的日志和记录
	ID          string
	Type        ChangeType
	ReleaseName string
	Namespace   string
	// OwnershipToken 为空表示 release 上还没有 token，事件会被忽略
	OwnershipToken string
}

// String 返回事件的简短描述，用于日志。
func (e ReleaseEvent) String() string {
	return fmt.Sprintf("%s %s/%s", e.Type, e.Namespace, e.ReleaseName)
}

// CandidateObject 是解析器在命名空间中找到的一个对象，归属尚未判定。
type CandidateObject struct {
	Kind      string
	Name      string
	Namespace string
	// ResourceVersion 用于乐观并发控制
	ResourceVersion string
	Labels          map[string]string
}

// Ref 返回 "kind/name" 形式的引用，和 kubectl 的输出保持一致。
func (c CandidateObject) Ref() string {
	return strings.ToLower(c.Kind) + "/" + c.Name
}
