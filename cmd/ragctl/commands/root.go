// Package commands 定义 ragctl 的子命令。
package commands

import (
	"fmt"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

// NewRootCmd 创建根命令。子命令运行前加载配置并初始化日志。
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragctl",
		Short: "Offline tooling for the FAQ question-answering service",
		Long: `ragctl builds and inspects the artifacts served by the FAQ service.

Configuration is read from .env, the environment and the YAML file given
by --config, exactly like the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.Conf = *cfg
			level := cfg.Log.Level
			if verbose {
				level = "DEBUG"
			}
			log.Init(level, "console", "")
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewEvaluateCmd())
	cmd.AddCommand(NewModelsCmd())
	cmd.AddCommand(NewTokenCmd())
	cmd.AddCommand(NewEventsCmd())
	return cmd
}

// Execute 运行根命令。
func Execute() error {
	return NewRootCmd().Execute()
}
