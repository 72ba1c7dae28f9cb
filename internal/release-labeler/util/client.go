// file: internal/release-labeler/util/client.go

package util

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Clients 包含控制器需要的两种客户端。
type Clients struct {
	Kubernetes kubernetes.Interface
	Dynamic    dynamic.Interface
}

// RestConfig 按照 kubectl 的规则加载 kubeconfig：
// 显式路径优先，其次是 KUBECONFIG 和 $HOME/.kube/config，最后回退到 in-cluster 配置。
func RestConfig(kubeconfig, context string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = kubeconfig
	overrides := &clientcmd.ConfigOverrides{CurrentContext: context}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes client config: %w", err)
	}
	return config, nil
}

// NewClientsFromConfig 从配置中创建 typed 和 dynamic 两种客户端。
func NewClientsFromConfig(cfg *Config) (*Clients, error) {
	restConfig, err := RestConfig(cfg.Kubeconfig, cfg.Context)
	if err != nil {
		return nil, err
	}
	restConfig.UserAgent = "release-labeler"

	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return &Clients{Kubernetes: cs, Dynamic: dyn}, nil
}
