// file: internal/release-labeler/util/config.go

package util

import (
	"fmt"
	"time"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/fx147/release-labeler/pkg/matcher"
	"github.com/fx147/release-labeler/pkg/registry"
	"github.com/fx147/release-labeler/pkg/resolver"
	"github.com/spf13/viper"
)

// ResolveConfig 对应配置文件中的 resolve 段。
type ResolveConfig struct {
	Policy         string `mapstructure:"policy"`
	MaxConcurrency int    `mapstructure:"maxConcurrency"`
}

// PatchConfig 对应配置文件中的 patch 段。
type PatchConfig struct {
	MaxConcurrency        int     `mapstructure:"maxConcurrency"`
	QPS                   float64 `mapstructure:"qps"`
	Burst                 int     `mapstructure:"burst"`
	OptimisticConcurrency bool    `mapstructure:"optimisticConcurrency"`
}

// Config 是 release-labeler 的全部配置。
type Config struct {
	Kubeconfig string `mapstructure:"kubeconfig"`
	Context    string `mapstructure:"context"`
	// Namespace 为空表示监听所有命名空间
	Namespace string `mapstructure:"namespace"`
	Debug     bool   `mapstructure:"debug"`

	Release labelerv1.ReleaseResource `mapstructure:"release"`
	Labels  labelerv1.LabelKeys       `mapstructure:"labels"`

	Kinds           []string                  `mapstructure:"kinds"`
	CustomResources []registry.CustomResource `mapstructure:"customResources"`

	Resolve ResolveConfig `mapstructure:"resolve"`
	Patch   PatchConfig   `mapstructure:"patch"`
	Matcher string        `mapstructure:"matcher"`

	ResyncPeriod time.Duration `mapstructure:"resyncPeriod"`
	Workers      int           `mapstructure:"workers"`

	HistoryDB   string `mapstructure:"historyDB"`
	HistoryKeep int    `mapstructure:"historyKeep"`

	// FollowHistory 为 true 时，run 会把新写入的历史记录以 JSON 行输出到 stdout
	FollowHistory bool   `mapstructure:"followHistory"`
	MetricsAddr   string `mapstructure:"metricsAddr"`
}

// SetDefaults 把默认值注册到 viper 上。
func SetDefaults(v *viper.Viper) {
	release := labelerv1.DefaultReleaseResource()
	v.SetDefault("release.group", release.Group)
	v.SetDefault("release.version", release.Version)
	v.SetDefault("release.plural", release.Plural)

	labels := labelerv1.DefaultLabelKeys()
	v.SetDefault("labels.ownership", labels.Ownership)
	v.SetDefault("labels.touched", labels.Touched)
	v.SetDefault("labels.token", labels.Token)

	v.SetDefault("kinds", registry.DefaultBuiltinKinds())
	v.SetDefault("resolve.policy", string(resolver.FailFast))
	v.SetDefault("resolve.maxConcurrency", 0)
	v.SetDefault("patch.maxConcurrency", 0)
	v.SetDefault("patch.qps", 0)
	v.SetDefault("patch.burst", 0)
	v.SetDefault("patch.optimisticConcurrency", true)
	v.SetDefault("matcher", matcher.SubstringName)
	v.SetDefault("resyncPeriod", 10*time.Minute)
	v.SetDefault("workers", 1)
	v.SetDefault("historyKeep", 1000)
}

// LoadConfig 从 viper 中读取并校验配置。
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置中无法在运行时恢复的错误。
func (c *Config) Validate() error {
	if c.Release.Group == "" || c.Release.Version == "" || c.Release.Plural == "" {
		return fmt.Errorf("release resource must specify group, version and plural, got %+v", c.Release)
	}
	if c.Labels.Ownership == "" || c.Labels.Touched == "" || c.Labels.Token == "" {
		return fmt.Errorf("labels.ownership, labels.touched and labels.token must not be empty")
	}
	if c.Labels.Ownership == c.Labels.Touched {
		return fmt.Errorf("ownership and touched labels must differ, both are %q", c.Labels.Ownership)
	}
	if _, err := resolver.ParsePolicy(c.Resolve.Policy); err != nil {
		return err
	}
	if _, err := matcher.ForName(c.Matcher); err != nil {
		return err
	}
	if c.Resolve.MaxConcurrency < 0 || c.Patch.MaxConcurrency < 0 {
		return fmt.Errorf("concurrency limits must not be negative")
	}
	if c.Patch.QPS < 0 || c.Patch.Burst < 0 {
		return fmt.Errorf("patch.qps and patch.burst must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.FollowHistory && c.HistoryDB == "" {
		return fmt.Errorf("followHistory requires historyDB to be set")
	}
	if c.HistoryKeep < 0 {
		return fmt.Errorf("historyKeep must not be negative, got %d", c.HistoryKeep)
	}
	return nil
}

// RegistryConfig 返回构建 registry 所需的配置。
func (c *Config) RegistryConfig() registry.Config {
	return registry.Config{
		BuiltinKinds:    c.Kinds,
		CustomResources: c.CustomResources,
	}
}
