package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
)

var databaseGVR = schema.GroupVersionResource{Group: "db.example.com", Version: "v1", Resource: "databases"}

func newDatabase(namespace, name string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion("db.example.com/v1")
	u.SetKind("Database")
	u.SetNamespace(namespace)
	u.SetName(name)
	u.SetResourceVersion("7")
	u.SetLabels(map[string]string{"app": name})
	return u
}

func newFakeDynamic(objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{databaseGVR: "DatabaseList"}, objs...)
}

func TestNew(t *testing.T) {
	cs := fake.NewSimpleClientset()
	dyn := newFakeDynamic()

	t.Run("Defaults", func(t *testing.T) {
		r, err := New(cs, dyn, Config{})
		require.NoError(t, err)
		assert.Equal(t, DefaultBuiltinKinds(), r.Kinds())

		h, ok := r.HandlerFor("Ingress")
		require.True(t, ok)
		assert.Equal(t, "NetworkingV1", h.Binding())
		assert.Equal(t, "ingresses", h.Resource().Resource)
	})

	t.Run("CustomResources", func(t *testing.T) {
		r, err := New(cs, dyn, Config{
			BuiltinKinds:    []string{"Pod"},
			CustomResources: []CustomResource{{Group: "db.example.com", Version: "v1", Plural: "databases", Kind: "Database"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Pod", "Database"}, r.Kinds())

		h, ok := r.HandlerFor("Database")
		require.True(t, ok)
		assert.Equal(t, "Dynamic", h.Binding())
		assert.Equal(t, databaseGVR, h.Resource())
		assert.Len(t, r.Handlers(), 2)
	})

	t.Run("UnknownBuiltin", func(t *testing.T) {
		_, err := New(cs, dyn, Config{BuiltinKinds: []string{"Widget"}})
		assert.ErrorContains(t, err, "unsupported built-in kind")
	})

	t.Run("DuplicateKind", func(t *testing.T) {
		_, err := New(cs, dyn, Config{
			BuiltinKinds:    []string{"Deployment"},
			CustomResources: []CustomResource{{Group: "x.io", Version: "v1", Plural: "deployments", Kind: "Deployment"}},
		})
		assert.ErrorContains(t, err, "already bound")

		_, err = New(cs, dyn, Config{BuiltinKinds: []string{"Pod", "Pod"}})
		assert.ErrorContains(t, err, "already bound")
	})

	t.Run("IncompleteCustomResource", func(t *testing.T) {
		_, err := New(cs, dyn, Config{CustomResources: []CustomResource{{Group: "x.io", Kind: "Thing"}}})
		assert.ErrorContains(t, err, "missing version, plural")
	})

	t.Run("KindsIsACopy", func(t *testing.T) {
		r, err := New(cs, dyn, Config{BuiltinKinds: []string{"Pod"}})
		require.NoError(t, err)
		kinds := r.Kinds()
		kinds[0] = "Mutated"
		assert.Equal(t, []string{"Pod"}, r.Kinds())
	})
}

func TestSupportedBuiltinKinds(t *testing.T) {
	supported := SupportedBuiltinKinds()
	names := make(map[string]bool)
	for i, k := range supported {
		names[k.Kind] = true
		if i > 0 {
			assert.Less(t, supported[i-1].Kind, k.Kind, "should be sorted")
		}
	}
	for _, k := range DefaultBuiltinKinds() {
		assert.True(t, names[k], "default kind %s should be supported", k)
	}
}

func TestTypedHandler(t *testing.T) {
	ctx := context.Background()
	cs := fake.NewSimpleClientset(
		&appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "apps", ResourceVersion: "3", Labels: map[string]string{"app": "web"}}},
		&appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: "other", Namespace: "other-ns"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "web-0", Namespace: "apps"}},
	)
	r, err := New(cs, nil, Config{BuiltinKinds: []string{"Deployment", "Pod"}})
	require.NoError(t, err)
	h, _ := r.HandlerFor("Deployment")

	list, err := h.List(ctx, "apps")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Deployment", list[0].Kind)
	assert.Equal(t, "web", list[0].Name)

	got, err := h.Get(ctx, "apps", "web")
	require.NoError(t, err)
	assert.Equal(t, "3", got.ResourceVersion)

	patch := []byte(`[{"op":"replace","path":"/metadata/labels","value":{"app":"web","owner":"x"}}]`)
	patched, err := h.Patch(ctx, "apps", "web", types.JSONPatchType, patch)
	require.NoError(t, err)
	assert.Equal(t, "x", patched.Labels["owner"])

	stored, err := cs.AppsV1().Deployments("apps").Get(ctx, "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "x", stored.Labels["owner"])
}

func TestDynamicHandler(t *testing.T) {
	ctx := context.Background()
	dyn := newFakeDynamic(newDatabase("apps", "web-db"), newDatabase("other", "x"))
	r, err := New(fake.NewSimpleClientset(), dyn, Config{
		BuiltinKinds:    []string{"Pod"},
		CustomResources: []CustomResource{{Group: "db.example.com", Version: "v1", Plural: "databases", Kind: "Database"}},
	})
	require.NoError(t, err)
	h, _ := r.HandlerFor("Database")

	list, err := h.List(ctx, "apps")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Database", list[0].Kind)
	assert.Equal(t, "web-db", list[0].Name)

	got, err := h.Get(ctx, "apps", "web-db")
	require.NoError(t, err)
	assert.Equal(t, "7", got.ResourceVersion)

	patch := []byte(`[{"op":"replace","path":"/metadata/labels","value":{"owner":"x"}}]`)
	patched, err := h.Patch(ctx, "apps", "web-db", types.JSONPatchType, patch)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "x"}, patched.Labels)
}

func TestNewFromHandlers(t *testing.T) {
	cs := fake.NewSimpleClientset()
	base, err := New(cs, nil, Config{BuiltinKinds: []string{"Pod", "Secret"}})
	require.NoError(t, err)

	r, err := NewFromHandlers(base.Handlers()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pod", "Secret"}, r.Kinds())

	pod, _ := base.HandlerFor("Pod")
	_, err = NewFromHandlers(pod, pod)
	assert.ErrorContains(t, err, "already bound")
}
