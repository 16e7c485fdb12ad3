package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/docquery/docquery/internal/core/document"
)

// IngestAction はPDFファイルまたはディレクトリを取り込むコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	workers := int(cmd.Int("workers"))

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	files, err := collectPDFFiles(path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no PDF files found at %s", path)
	}

	reports := appCtx.Container.DocumentService.IngestBatch(ctx, files, workers)

	failed := 0
	for _, report := range reports {
		if report.Err != nil {
			failed++
			fmt.Printf("NG  %s: %v\n", report.Filename, report.Err)
			continue
		}
		fmt.Printf("OK  %s (id=%s pages=%d chunks=%d)\n",
			report.Filename, report.DocumentID, report.PageCount, report.ChunkCount)
		for _, warning := range report.Warnings {
			fmt.Printf("    warning: %s\n", warning)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to ingest", failed, len(reports))
	}
	return nil
}

// DocumentListAction はドキュメント一覧を表示するコマンドのアクション
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Container.DocumentService.List(ctx)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		fmt.Println("no documents")
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("%s  %-40s  pages=%d  %s\n",
			doc.ID, doc.Title, doc.PageCount, doc.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// DocumentShowAction はドキュメント詳細を表示するコマンドのアクション
func DocumentShowAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	doc, err := appCtx.Container.DocumentService.Get(ctx, cmd.String("id"))
	if err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", doc.ID)
	fmt.Printf("Title:     %s\n", doc.Title)
	fmt.Printf("Filename:  %s\n", doc.Filename)
	fmt.Printf("Pages:     %d\n", doc.PageCount)
	fmt.Printf("Ingested:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	if doc.Summary != nil {
		fmt.Printf("Summary:   %s\n", *doc.Summary)
	}
	return nil
}

// DocumentDeleteAction はドキュメントを削除するコマンドのアクション
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	id := cmd.String("id")
	if err := appCtx.Container.DocumentService.Delete(ctx, id); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return fmt.Errorf("document not found: %s", id)
		}
		return err
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

// DocumentSummarizeAction はドキュメント要約を表示するコマンドのアクション
func DocumentSummarizeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	summary, err := appCtx.Container.DocumentService.Summarize(ctx, cmd.String("id"), cmd.Bool("force"))
	if err != nil {
		return err
	}
	fmt.Println(summary)
	return nil
}

// collectPDFFiles はパス（ファイルまたはディレクトリ）からPDFを読み込む
func collectPDFFiles(path string) ([]document.BatchFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return []document.BatchFile{{Name: filepath.Base(path), Data: data}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	var files []document.BatchFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		files = append(files, document.BatchFile{Name: entry.Name(), Data: data})
	}
	return files, nil
}
