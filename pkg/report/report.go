// file: pkg/report/report.go

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome 是一次标签写入的进度
type Outcome string

const (
	Started   Outcome = "Started"
	Succeeded Outcome = "Succeeded"
	Failed    Outcome = "Failed"
)

// Record 描述了一次标签写入的一个阶段。
type Record struct {
	ID string `json:"id"`
	// Sequence 由 Store 分配，单调递增
	Sequence  uint64    `json:"sequence,omitempty"`
	EventID   string    `json:"eventID,omitempty"`
	Release   string    `json:"release"`
	Namespace string    `json:"namespace"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"time"`
}

// NewRecord 创建一条带 ID 和时间戳的记录。
func NewRecord(outcome Outcome) Record {
	return Record{
		ID:      uuid.NewString(),
		Outcome: outcome,
		Time:    time.Now(),
	}
}

// EventLevel 表示记录不对应某个对象，而是整个事件失败 (例如解析候选对象失败)。
func (r Record) EventLevel() bool {
	return r.Kind == "" && r.Name == ""
}

// Message 返回一条记录的描述，例如
// label 'io.cattle.field/appId=p-1' to 'deployment/web' in namespace 'apps'
func (r Record) Message(ownershipLabel string) string {
	if r.EventLevel() {
		return fmt.Sprintf("label '%s=%s' to objects of release '%s' in namespace '%s'",
			ownershipLabel, r.Token, r.Release, r.Namespace)
	}
	return fmt.Sprintf("label '%s=%s' to '%s/%s' in namespace '%s'",
		ownershipLabel, r.Token, strings.ToLower(r.Kind), r.Name, r.Namespace)
}

// Reporter 接收标签写入的进度。它只用于展示和记录，不参与任何控制决策。
type Reporter interface {
	Report(rec Record)
}

// ReporterFunc 允许把普通函数当作 Reporter 使用。
type ReporterFunc func(rec Record)

func (f ReporterFunc) Report(rec Record) { f(rec) }

// Multi 把一条记录分发给多个 Reporter。
type Multi []Reporter

func (m Multi) Report(rec Record) {
	for _, r := range m {
		if r != nil {
			r.Report(rec)
		}
	}
}

// Discard 丢弃所有记录。
var Discard Reporter = ReporterFunc(func(Record) {})
