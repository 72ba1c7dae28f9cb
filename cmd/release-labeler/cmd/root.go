// file: cmd/release-labeler/cmd/root.go

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fx147/release-labeler/internal/release-labeler/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
)

var (
	// cfgFile 用于存储配置文件的路径
	cfgFile string

	// rootCmd 代表没有调用子命令时的基础命令
	rootCmd = &cobra.Command{
		Use:   "release-labeler",
		Short: "Propagate release ownership labels onto the objects a release produced",
		Long: `release-labeler watches Helm release resources and copies the ownership
token found on each release onto the namespaced objects the release created.

Objects are attributed to a release by name. Every object that receives the
label is also stamped with a touched marker so it is never processed twice.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
)

// Execute 执行根命令，由 main.go 调用。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	util.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.release-labeler.yaml)")

	// 集群连接相关的标志
	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to a kubeconfig file (defaults to KUBECONFIG, ~/.kube/config, then in-cluster)")
	rootCmd.PersistentFlags().String("context", "", "The kubeconfig context to use")
	rootCmd.PersistentFlags().String("history-db", "release-labeler.db", "Path of the label history database")

	viper.BindPFlag("kubeconfig", rootCmd.PersistentFlags().Lookup("kubeconfig"))
	viper.BindPFlag("context", rootCmd.PersistentFlags().Lookup("context"))
	viper.BindPFlag("historyDB", rootCmd.PersistentFlags().Lookup("history-db"))

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newKindsCmd())
	rootCmd.AddCommand(newHistoryCmd())
}

// initConfig 读取配置文件和环境变量（如果设置了的话）。
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// 先在当前工作目录查找，再在家目录查找
		viper.AddConfigPath(".")
		viper.AddConfigPath(home)

		viper.SetConfigName(".release-labeler")
		viper.SetConfigType("yaml")
	}

	// 环境变量前缀，例如 RELEASELABELER_NAMESPACE、RELEASELABELER_PATCH_QPS
	viper.SetEnvPrefix("RELEASELABELER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			klog.Warningf("Error reading config file: %v", err)
		}
	} else {
		klog.V(2).Infof("Using config file %s", viper.ConfigFileUsed())
	}
}

// GetRootCmd 导出 rootCmd 以便 main.go 可以添加 klog 标志
func GetRootCmd() *cobra.Command {
	return rootCmd
}
