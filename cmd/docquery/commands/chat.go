package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/docquery/docquery/internal/core/chat"
)

// AskAction は出典付き質問応答を実行するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	caller := cmd.String("caller")

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	params := chat.AskParams{
		CallerID: caller,
		Query:    query,
	}
	if raw := cmd.String("conversation"); raw != "" {
		convID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid conversation id: %s", raw)
		}
		params.ConversationID = mo.Some(convID)
	}
	if raw := cmd.String("documents"); raw != "" {
		params.DocumentIDs = strings.Split(raw, ",")
	}

	result, err := appCtx.Container.ChatService.Ask(ctx, params)
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	if result.Degraded {
		fmt.Println("(回答生成に失敗したため出典のみ提示しています)")
	}
	if len(result.Citations) > 0 {
		fmt.Println("\nSources:")
		for i, citation := range result.Citations {
			fmt.Printf("  [%d] %s (p.%d, score=%.3f)\n", i+1, citation.DocumentTitle, citation.Page, citation.Score)
		}
	}
	if convID, ok := result.ConversationID.Get(); ok {
		fmt.Printf("\nconversation: %s\n", convID)
	}
	return nil
}

// ChatListAction は会話一覧を表示するコマンドのアクション
func ChatListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	convs, err := appCtx.Container.ChatService.ListConversations(ctx, cmd.String("caller"))
	if err != nil {
		return err
	}

	if len(convs) == 0 {
		fmt.Println("no conversations")
		return nil
	}
	for _, conv := range convs {
		fmt.Printf("%s  %-50s  %s\n", conv.ID, conv.Title, conv.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// ChatShowAction は会話の履歴を表示するコマンドのアクション
func ChatShowAction(ctx context.Context, cmd *cli.Command) error {
	convID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid conversation id: %s", cmd.String("id"))
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	conv, messages, err := appCtx.Container.ChatService.GetConversation(ctx, cmd.String("caller"), convID)
	if err != nil {
		return err
	}

	fmt.Printf("# %s\n\n", conv.Title)
	for _, msg := range messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		for i, citation := range msg.Citations {
			fmt.Printf("    [%d] %s (p.%d)\n", i+1, citation.DocumentTitle, citation.Page)
		}
	}
	return nil
}

// ChatDeleteAction は会話を削除するコマンドのアクション
func ChatDeleteAction(ctx context.Context, cmd *cli.Command) error {
	convID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid conversation id: %s", cmd.String("id"))
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.ChatService.DeleteConversation(ctx, cmd.String("caller"), convID); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", convID)
	return nil
}
