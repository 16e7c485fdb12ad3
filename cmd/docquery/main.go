package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/docquery/docquery/cmd/docquery/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "docquery",
		Usage: "PDFドキュメント向けハイブリッド検索・出典付きQAシステム",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "PDFファイルまたはディレクトリを取り込む",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "path",
						Usage:    "PDFファイルまたはディレクトリのパス",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "並列取り込み数",
						Value: 4,
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:  "documents",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "ドキュメント一覧を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.DocumentListAction,
					},
					{
						Name:  "show",
						Usage: "ドキュメント詳細を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						},
						Action: commands.DocumentShowAction,
					},
					{
						Name:  "delete",
						Usage: "ドキュメントを削除",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						},
						Action: commands.DocumentDeleteAction,
					},
					{
						Name:  "summarize",
						Usage: "ドキュメント要約を生成",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
							&cli.BoolFlag{
								Name:  "force",
								Usage: "既存の要約を破棄して再生成",
							},
						},
						Action: commands.DocumentSummarizeAction,
					},
				},
			},
			{
				Name:  "search",
				Usage: "ハイブリッド検索を実行",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "取得件数",
						Value: 10,
					},
					&cli.StringFlag{
						Name:  "documents",
						Usage: "検索対象ドキュメントID（カンマ区切り、省略時は全件）",
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:  "ask",
				Usage: "出典付き質問応答を実行",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "質問文",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "継続する会話ID（省略時は新規会話）",
					},
					&cli.StringFlag{
						Name:  "documents",
						Usage: "回答対象ドキュメントID（カンマ区切り、省略時は全件）",
					},
					&cli.StringFlag{
						Name:  "caller",
						Usage: "呼び出し元ID（省略時は会話を保存しない）",
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "chat",
				Usage: "会話管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "会話一覧を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "caller",
								Usage:    "呼び出し元ID",
								Required: true,
							},
						},
						Action: commands.ChatListAction,
					},
					{
						Name:  "show",
						Usage: "会話の履歴を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "caller",
								Usage:    "呼び出し元ID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "会話ID",
								Required: true,
							},
						},
						Action: commands.ChatShowAction,
					},
					{
						Name:  "delete",
						Usage: "会話を削除",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "caller",
								Usage:    "呼び出し元ID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "会話ID",
								Required: true,
							},
						},
						Action: commands.ChatDeleteAction,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "HTTP APIサーバを起動",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
				},
				Action: commands.ServeAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
