// file: cmd/release-labeler/cmd/kinds.go

package cmd

import (
	"os"

	"github.com/fx147/release-labeler/internal/release-labeler/util"
	"github.com/fx147/release-labeler/pkg/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newKindsCmd 创建 kinds 命令，打印支持的资源类型以及当前启用了哪些。
func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "kinds",
		Short:   "List the object kinds that can be resolved",
		Aliases: []string{"kind"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := util.LoadConfig(viper.GetViper())
			if err != nil {
				return err
			}
			util.PrintKindsTable(os.Stdout, registry.SupportedBuiltinKinds(), cfg.CustomResources, cfg.Kinds)
			return nil
		},
	}
}
