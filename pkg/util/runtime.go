package util

import (
	"fmt"

	labelerv1 "github.com/fx147/release-labeler/pkg/apis/labeler/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
)

// CandidateFromObject 是一个辅助函数，用于从任意 runtime.Object 中提取候选对象。
// 无论是 typed 对象还是 unstructured 对象，都通过 meta.Accessor 读取元数据。
// 列表接口返回的对象通常不带 Kind，所以 kind 由调用方指定。
func CandidateFromObject(kind string, obj runtime.Object) (labelerv1.CandidateObject, error) {
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return labelerv1.CandidateObject{}, fmt.Errorf("object of kind %s has no metadata: %w", kind, err)
	}

	// 复制一份标签，避免调用方修改到 informer 或 client 返回的对象
	var labels map[string]string
	if src := accessor.GetLabels(); src != nil {
		labels = make(map[string]string, len(src))
		for k, v := range src {
			labels[k] = v
		}
	}

	return labelerv1.CandidateObject{
		Kind:            kind,
		Name:            accessor.GetName(),
		Namespace:       accessor.GetNamespace(),
		ResourceVersion: accessor.GetResourceVersion(),
		Labels:          labels,
	}, nil
}

// CandidatesFromList 将一个列表对象 (例如 *corev1.PodList 或 *unstructured.UnstructuredList)
// 展开成候选对象列表，每一项都打上 kind。
func CandidatesFromList(kind string, list runtime.Object) ([]labelerv1.CandidateObject, error) {
	items, err := meta.ExtractList(list)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s list: %w", kind, err)
	}

	candidates := make([]labelerv1.CandidateObject, 0, len(items))
	for _, item := range items {
		c, err := CandidateFromObject(kind, item)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}
