package service

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	// команды принимаем только из чата оператора
	if msg.Chat.ID != t.chatID {
		t.log.Warn("telegram: foreign chat", zap.Int64("chat_id", msg.Chat.ID))
		return
	}
	if !msg.IsCommand() {
		return
	}
	t.Send(Execute(ctx, t.store, t.account, msg.Text))
}
