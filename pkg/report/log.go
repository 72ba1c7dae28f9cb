// file: pkg/report/log.go

package report

import (
	"k8s.io/klog/v2"
)

// LogReporter 把进度打印成状态行：ADDING / ADDED / FAILED。
type LogReporter struct {
	OwnershipLabel string
}

var _ Reporter = &LogReporter{}

func (l *LogReporter) Report(rec Record) {
	msg := rec.Message(l.OwnershipLabel)
	switch rec.Outcome {
	case Started:
		klog.Infof("ADDING %s", msg)
	case Succeeded:
		klog.Infof("ADDED %s", msg)
	case Failed:
		klog.Errorf("FAILED %s: %s", msg, rec.Detail)
	default:
		klog.Warningf("Unknown outcome %q for %s", rec.Outcome, msg)
	}
}
