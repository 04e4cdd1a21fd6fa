package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestreldata/channelharvest/internal/storage/postgres"
	"github.com/kestreldata/channelharvest/internal/tagging"
)

// newTagCmd creates the 'tag' subcommand: keyword relevance scoring over
// rows already ingested by 'harvest'.
func newTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag",
		Short: "Score ingested videos against a keyword list",
		Long: `Loads a keyword CSV (Generic, Specialised and Abbreviations columns),
scores the combined title/description/tags text of every ingested video,
and writes a CSV report with the relevance score and matched keywords.`,
		RunE: runTagCommand,
	}
}

func runTagCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	logger := rt.logger

	if cfg.Tagging.KeywordFile == "" {
		return errors.New("tagging.keyword_file is required")
	}
	if cfg.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}

	keywords, err := tagging.LoadKeywords(cfg.Tagging.KeywordFile)
	if err != nil {
		return fmt.Errorf("load keywords: %w", err)
	}

	ctx := cmd.Context()
	store, err := postgres.NewVideoStore(ctx, postgres.VideoStoreConfig{
		DSN:    cfg.DB.DSN,
		Schema: cfg.DB.Schema,
		Table:  cfg.DB.Table,
	})
	if err != nil {
		return fmt.Errorf("init video store: %w", err)
	}
	defer store.Close()

	texts, err := store.ListVideoTexts(ctx)
	if err != nil {
		return fmt.Errorf("load ingested rows: %w", err)
	}
	logger.Info("scoring videos",
		zap.Int("rows", len(texts)),
		zap.String("keyword_file", cfg.Tagging.KeywordFile),
	)

	tagged, err := writeTagReport(ctx, cfg.Tagging.OutputFile, keywords, texts)
	if err != nil {
		return err
	}

	logger.Info("tagging complete",
		zap.Int("total", len(texts)),
		zap.Int("tagged", tagged),
		zap.String("output", cfg.Tagging.OutputFile),
	)
	return nil
}

func writeTagReport(ctx context.Context, path string, keywords *tagging.KeywordSet, texts []postgres.VideoText) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	header := []string{"channel_id", "video_id", "tag_score", "is_tagged", "matched_keywords"}
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	tagged := 0
	for _, vt := range texts {
		if ctx.Err() != nil {
			return tagged, fmt.Errorf("tagging interrupted: %w", ctx.Err())
		}
		result := keywords.Score(tagging.CombineText(vt.Title, vt.Description, vt.Tags))
		if result.Tagged() {
			tagged++
		}
		row := []string{
			vt.ChannelID,
			vt.VideoID,
			strconv.Itoa(result.Score),
			strconv.FormatBool(result.Tagged()),
			strings.Join(result.Matched, "|"),
		}
		if err := w.Write(row); err != nil {
			return tagged, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return tagged, fmt.Errorf("flush output: %w", err)
	}
	return tagged, nil
}
