package commands

import (
	"context"
	"fmt"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/llm"

	"github.com/spf13/cobra"
)

// NewModelsCmd 创建 models 命令。
func NewModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models of the configured provider that support text generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			client, err := llm.NewClient(config.Conf.LLM)
			if err != nil {
				return err
			}
			names, err := client.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("listing models: %w", err)
			}
			for _, name := range names {
				marker := " "
				if name == client.Model() {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}
