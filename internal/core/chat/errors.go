package chat

import "errors"

var (
	// ErrConversationNotFound は指定された会話が存在しない場合のエラー
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrUnauthorized は会話の所有者以外からのアクセスを表すエラー
	ErrUnauthorized = errors.New("conversation belongs to another caller")
)
