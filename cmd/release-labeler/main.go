// file: cmd/release-labeler/main.go

package main

import (
	"flag"

	"github.com/fx147/release-labeler/cmd/release-labeler/cmd"
	"k8s.io/klog/v2"
)

func main() {
	// klog 的标志挂到 cobra 的根命令上，这样 -v、--logtostderr 等参数都可以使用
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	cmd.GetRootCmd().PersistentFlags().AddGoFlagSet(fs)

	defer klog.Flush()
	cmd.Execute()
}
