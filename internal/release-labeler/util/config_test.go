package util

import (
	"strings"
	"testing"
	"time"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"github.com/fx147/release-labeler/pkg/registry"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yamlConfig string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yamlConfig != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yamlConfig)))
	}
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, labelerv1.DefaultReleaseResource(), cfg.Release)
	assert.Equal(t, labelerv1.DefaultLabelKeys(), cfg.Labels)
	assert.Equal(t, registry.DefaultBuiltinKinds(), cfg.Kinds)
	assert.Equal(t, "FailFast", cfg.Resolve.Policy)
	assert.True(t, cfg.Patch.OptimisticConcurrency)
	assert.Equal(t, "substring", cfg.Matcher)
	assert.Equal(t, 10*time.Minute, cfg.ResyncPeriod)
	assert.Equal(t, 1, cfg.Workers)
	assert.Empty(t, cfg.Namespace)
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(newViper(t, `
namespace: apps
release:
  group: helm.toolkit.fluxcd.io
  version: v2
labels:
  ownership: example.com/owner
kinds: [Deployment, Secret]
customResources:
  - group: db.example.com
    version: v1
    plural: databases
    kind: Database
resolve:
  policy: BestEffort
  maxConcurrency: 4
patch:
  qps: 5.5
  burst: 10
  optimisticConcurrency: false
matcher: prefix
resyncPeriod: 30s
workers: 2
`))
	require.NoError(t, err)

	assert.Equal(t, "apps", cfg.Namespace)
	assert.Equal(t, labelerv1.ReleaseResource{Group: "helm.toolkit.fluxcd.io", Version: "v2", Plural: "helmreleases"}, cfg.Release)
	assert.Equal(t, "example.com/owner", cfg.Labels.Ownership)
	assert.Equal(t, labelerv1.DefaultTouchedLabel, cfg.Labels.Touched)
	assert.Equal(t, []string{"Deployment", "Secret"}, cfg.Kinds)
	assert.Equal(t, []registry.CustomResource{{Group: "db.example.com", Version: "v1", Plural: "databases", Kind: "Database"}}, cfg.CustomResources)
	assert.Equal(t, "BestEffort", cfg.Resolve.Policy)
	assert.Equal(t, 4, cfg.Resolve.MaxConcurrency)
	assert.Equal(t, 5.5, cfg.Patch.QPS)
	assert.Equal(t, 10, cfg.Patch.Burst)
	assert.False(t, cfg.Patch.OptimisticConcurrency)
	assert.Equal(t, "prefix", cfg.Matcher)
	assert.Equal(t, 30*time.Second, cfg.ResyncPeriod)
	assert.Equal(t, 2, cfg.Workers)

	rc := cfg.RegistryConfig()
	assert.Equal(t, cfg.Kinds, rc.BuiltinKinds)
	assert.Len(t, rc.CustomResources, 1)
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := map[string]string{
		"unknown policy":  "resolve: {policy: Sometimes}",
		"unknown matcher": "matcher: fuzzy",
		"no workers":      "workers: 0",
		"same labels":     "labels: {ownership: a/b, touched: a/b}",
		"negative limit":  "patch: {maxConcurrency: -1}",
		"empty release":   "release: {plural: ''}",
		"negative keep":   "historyKeep: -5",
		"negative rate":   "patch: {qps: -1}",
		"follow no db":    "followHistory: true",
	}
	for name, config := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(newViper(t, config))
			assert.Error(t, err)
		})
	}
}
