package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/docquery/docquery/internal/interface/api"
)

// ServeAction はHTTP APIサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	handler := api.NewHandler(
		appCtx.Container.DocumentService,
		appCtx.Container.SearchService,
		appCtx.Container.Resolver,
		appCtx.Container.ChatService,
		appCtx.Container.ActivityService,
	)

	tokens := api.ParseTokens(appCtx.Config.Server.APITokens)
	server := api.NewServer(handler, tokens, appCtx.Config.Server.Port, api.WithServerLogger(appCtx.Logger))

	appCtx.Logger.Info("starting api server", "port", appCtx.Config.Server.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
