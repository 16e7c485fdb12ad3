package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/docquery/docquery/internal/core/search"
)

// SearchAction はハイブリッド検索を実行するコマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	limit := int(cmd.Int("limit"))

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var documentIDs []string
	if raw := cmd.String("documents"); raw != "" {
		documentIDs = strings.Split(raw, ",")
	}

	results, err := appCtx.Container.SearchService.Search(ctx, search.SearchParams{
		Query:       query,
		DocumentIDs: documentIDs,
		Limit:       limit,
	})
	if err != nil {
		return err
	}

	citations, err := appCtx.Container.Resolver.Resolve(ctx, results)
	if err != nil {
		return err
	}

	if len(citations) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, citation := range citations {
		fmt.Printf("%2d. [%.3f] %s (p.%d)\n", i+1, citation.Score, citation.DocumentTitle, citation.Page)
		fmt.Printf("    %s\n", citation.Preview)
	}
	return nil
}
