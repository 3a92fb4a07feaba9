package commands

import (
	"context"
	"fmt"

	"faq-rag-go/internal/config"
	"faq-rag-go/internal/evaluation"
	"faq-rag-go/internal/retriever"
	"faq-rag-go/pkg/embedding"

	"github.com/spf13/cobra"
)

var (
	evalGoldenSet string
	evalK         int
	evalStrict    bool
)

// NewEvaluateCmd 创建 evaluate 命令。
func NewEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure retrieval recall against the golden set",
		Long: `Run every golden-set question through the retriever and report
HIT@1 / HIT@K / MISS per question plus Recall@1 and Recall@K.`,
		Args: cobra.NoArgs,
		RunE: runEvaluate,
	}

	cmd.Flags().StringVar(&evalGoldenSet, "golden-set", "", "Golden set JSON file (default evaluation.golden_set_path)")
	cmd.Flags().IntVar(&evalK, "k", 0, "Results per question (default evaluation.k)")
	cmd.Flags().BoolVar(&evalStrict, "strict", false, "Exit non-zero when the success criterion is not met")
	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg := config.Conf
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	path := evalGoldenSet
	if path == "" {
		path = cfg.Evaluation.GoldenSetPath
	}
	k := evalK
	if k == 0 {
		k = cfg.Evaluation.K
	}
	if k < 1 {
		return fmt.Errorf("k must be positive, got %d", k)
	}

	cases, err := evaluation.LoadGoldenSet(path)
	if err != nil {
		return err
	}

	embedder, err := embedding.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	opener, err := retriever.OpenerFromConfig(cfg)
	if err != nil {
		return err
	}
	r := retriever.New(embedder, retriever.NewStore(), opener, cfg.Index.MetadataPath())
	if err := r.Load(ctx); err != nil {
		return fmt.Errorf("loading retriever: %w", err)
	}

	report, err := evaluation.Run(ctx, r, cases, k, cfg.Evaluation.SuccessRecall)
	if err != nil {
		return err
	}
	evaluation.Render(cmd.OutOrStdout(), report)
	if evalStrict && !report.Passed() {
		return fmt.Errorf("recall@%d %.2f is below %.2f", k, report.RecallAtK, report.SuccessRecall)
	}
	return nil
}
