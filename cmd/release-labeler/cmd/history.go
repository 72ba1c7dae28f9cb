// file: cmd/release-labeler/cmd/history.go

package cmd

import (
	"fmt"
	"os"

	"github.com/fx147/release-labeler/internal/release-labeler/util"
	"github.com/fx147/release-labeler/pkg/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newHistoryCmd 创建 history 命令，读取已完成的标签写入记录。
func newHistoryCmd() *cobra.Command {
	var namespace, release, output string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Display finished label writes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("historyDB")
			if path == "" {
				return fmt.Errorf("no history database configured")
			}

			// 只读打开。控制器运行时数据库被锁住，这里会超时返回错误
			store, err := report.Open(path, true)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(report.ListOptions{
				Namespace: namespace,
				Release:   release,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			if len(records) == 0 && (output == "" || output == util.OutputTable) {
				fmt.Println("No records found.")
				return nil
			}
			return util.PrintRecords(os.Stdout, records, output)
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Only show records in this namespace")
	cmd.Flags().StringVarP(&release, "release", "r", "", "Only show records of this release")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum number of records to show (0 = all)")
	cmd.Flags().StringVarP(&output, "output", "o", util.OutputTable, "Output format: table, yaml or json")

	return cmd
}
