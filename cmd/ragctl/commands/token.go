package commands

import (
	"errors"
	"fmt"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/token"

	"github.com/spf13/cobra"
)

var tokenScope string

// NewTokenCmd 创建 token 命令。
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token for the /api/v1 routes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := config.Conf.Auth
			if auth.Secret == "" {
				return errors.New("auth.secret is not configured")
			}
			tok, err := token.NewJWTManager(auth.Secret, auth.TokenExpireHours).GenerateToken(args[0], tokenScope)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenScope, "scope", "ask", "Scope claim embedded in the token")
	return cmd
}
