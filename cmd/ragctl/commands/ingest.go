package commands

import (
	"context"
	"fmt"

	"faq-rag-go/internal/config"
	"faq-rag-go/internal/pipeline"
	"faq-rag-go/internal/repository"
	"faq-rag-go/pkg/database"
	"faq-rag-go/pkg/embedding"
	"faq-rag-go/pkg/es"
	"faq-rag-go/pkg/storage"

	"github.com/spf13/cobra"
)

var (
	ingestSource  string
	ingestPath    string
	ingestVersion string
	ingestSeed    bool
	ingestUpload  bool
	ingestES      bool
)

// NewIngestCmd 创建 ingest 命令。
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the vector index and metadata for a knowledge base version",
		Long: `Embed every FAQ record and write data/index_{version}.faiss and
data/metadata_{version}.json. Row i of the index is record i of the metadata.

Examples:
  ragctl ingest
  ragctl ingest --version v2 --path knowledge_base/faq.json --upload
  ragctl ingest --source mysql --seed --es`,
		Args: cobra.NoArgs,
		RunE: runIngest,
	}

	cmd.Flags().StringVar(&ingestSource, "source", "json", "Knowledge source: json or mysql")
	cmd.Flags().StringVar(&ingestPath, "path", "", "Knowledge base JSON file (default ingest.knowledge_base_path)")
	cmd.Flags().StringVar(&ingestVersion, "version", "", "Index version to build (default index.version)")
	cmd.Flags().BoolVar(&ingestSeed, "seed", false, "With --source mysql, upsert the JSON knowledge base into the table first")
	cmd.Flags().BoolVar(&ingestUpload, "upload", false, "Upload the artifacts to MinIO")
	cmd.Flags().BoolVar(&ingestES, "es", false, "Mirror the vectors into Elasticsearch")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := config.Conf
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	version := ingestVersion
	if version == "" {
		version = cfg.Index.Version
	}
	path := ingestPath
	if path == "" {
		path = cfg.Ingest.KnowledgeBasePath
	}

	var src pipeline.Source = pipeline.JSONFileSource{Path: path}
	switch ingestSource {
	case "json":
	case "mysql":
		if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
			return err
		}
		repo := repository.NewKnowledgeRepository(database.DB)
		if ingestSeed {
			n, err := pipeline.SeedRepository(ctx, repo, src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d entries into knowledge_entries\n", n)
		}
		src = pipeline.RepositorySource{Repo: repo}
	default:
		return fmt.Errorf("unknown source %q (want json or mysql)", ingestSource)
	}

	embedder, err := embedding.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}

	var opts []pipeline.Option
	if ingestES {
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return fmt.Errorf("creating elasticsearch client: %w", err)
		}
		opts = append(opts, pipeline.WithMirror(es.NewVectorStore(client, cfg.Elasticsearch.IndexName, version, embedder.Dimensions())))
	}
	if ingestUpload {
		store, err := storage.NewArtifactStore(ctx, cfg.MinIO)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithUploader(store))
	}

	processor := pipeline.NewProcessor(embedder, cfg.Embedding.BatchSize, cfg.Ingest.RequestsPerSecond, opts...)
	res, err := processor.Build(ctx, src, cfg.Index.DataDir, version)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d records (dimension %d)\n", res.Count, res.Dimension)
	fmt.Fprintf(out, "  index:    %s\n", res.IndexPath)
	fmt.Fprintf(out, "  metadata: %s\n", res.MetadataPath)
	return nil
}
