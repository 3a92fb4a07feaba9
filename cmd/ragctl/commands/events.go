package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/events"
	"faq-rag-go/pkg/kafka"

	"github.com/spf13/cobra"
)

// NewEventsCmd 创建 events 命令。
func NewEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Tail ask events from Kafka as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return kafka.ConsumeAskEvents(ctx, config.Conf.Kafka, eventPrinter{w: cmd.OutOrStdout()})
		},
	}
}

// eventPrinter 把每个事件输出为一行 JSON。
type eventPrinter struct {
	w io.Writer
}

func (p eventPrinter) HandleAskEvent(_ context.Context, event events.AskEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.w, string(line))
	return err
}
