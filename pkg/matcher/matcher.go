// file: pkg/matcher/matcher.go

package matcher

import (
	"fmt"
	"strings"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
)

// Matcher 判断一个候选对象是否属于某个 release。
// 只根据名称判断，不读取 ownerReferences 或 UID。
type Matcher interface {
	IsOwned(releaseName string, candidate labelerv1.CandidateObject) bool
}

// MatcherFunc 允许把普通函数当作 Matcher 使用。
type MatcherFunc func(releaseName string, candidate labelerv1.CandidateObject) bool

func (f MatcherFunc) IsOwned(releaseName string, candidate labelerv1.CandidateObject) bool {
	return f(releaseName, candidate)
}

const (
	SubstringName = "substring"
	PrefixName    = "prefix"
)

// Substring 把 release 名称当作字面量，在对象名称中任意位置匹配。
//
// 注意：这是一个宽松的启发式规则。release "web" 会匹配 "web-abc123"、
// "my-web"，也会匹配毫不相关的 "webhooks-x"。
type Substring struct{}

func (Substring) IsOwned(releaseName string, candidate labelerv1.CandidateObject) bool {
	if releaseName == "" {
		return false
	}
	return strings.Contains(candidate.Name, releaseName)
}

// Prefix 只接受名称等于 release 名称，或以 "<release>-" 开头的对象。
type Prefix struct{}

func (Prefix) IsOwned(releaseName string, candidate labelerv1.CandidateObject) bool {
	if releaseName == "" {
		return false
	}
	return candidate.Name == releaseName || strings.HasPrefix(candidate.Name, releaseName+"-")
}

// ForName 根据配置中的名称返回匹配策略，空字符串表示 substring。
func ForName(name string) (Matcher, error) {
	switch strings.ToLower(name) {
	case "", SubstringName:
		return Substring{}, nil
	case PrefixName:
		return Prefix{}, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q (expected %s or %s)", name, SubstringName, PrefixName)
	}
}
