package service

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"signal_bridge/internal/modules/config"
	"signal_bridge/internal/store"
)

// Telegram: уведомления в один чат и команды оператора из него же.
type Telegram struct {
	bot     *tgbot.BotAPI
	chatID  int64
	store   store.Store
	account Account
	log     *zap.Logger
}

func NewTelegram(cfg *config.Config, st store.Store, acct Account, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{
		bot:     b,
		chatID:  cfg.Telegram.ChatID,
		store:   st,
		account: acct,
		log:     log,
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("telegram send", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Start читает апдейты до отмены ctx или Stop.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) Stop() {
	t.bot.StopReceivingUpdates()
}
