package service

import (
	"context"

	"signal_bridge/internal/models"
	"signal_bridge/internal/store"
)

// Account: запросы к бирже для /balance и /orders.
type Account interface {
	Balance(ctx context.Context) (models.Balance, error)
	OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error)
}

// Execute применяет команду к стору и возвращает ответ оператору.
// acct может быть nil, тогда биржевые команды недоступны.
func Execute(ctx context.Context, st store.Store, acct Account, text string) string {
	cmd, ok := ParseCommand(text)
	if !ok {
		return "Not a command, see /help"
	}

	switch cmd.Name {
	case "balance", "orders":
		if acct == nil {
			return "❗️ exchange is not configured"
		}
		return executeAccount(ctx, acct, cmd)
	}

	settings, err := st.Settings(ctx)
	if err != nil {
		return "❗️ " + err.Error()
	}
	prot, err := st.Protection(ctx, cmd.Symbol)
	if err != nil {
		return "❗️ " + err.Error()
	}

	if cmd.Name == "status" {
		positions, err := st.Positions(ctx)
		if err != nil {
			return "❗️ " + err.Error()
		}
		return formatStatus(settings, prot, positions)
	}

	ch, err := ApplyCommand(cmd, settings, prot)
	if err != nil {
		return "❗️ " + err.Error()
	}
	if ch.SettingsChanged {
		if err := st.SaveSettings(ctx, ch.Settings); err != nil {
			return "❗️ " + err.Error()
		}
	}
	if ch.ProtectionChanged {
		if err := st.SaveProtection(ctx, ch.Protection); err != nil {
			return "❗️ " + err.Error()
		}
	}
	return "✅ " + ch.Reply
}

func executeAccount(ctx context.Context, acct Account, cmd Command) string {
	if cmd.Name == "balance" {
		b, err := acct.Balance(ctx)
		if err != nil {
			return "❗️ " + err.Error()
		}
		return formatBalance(b)
	}
	orders, err := acct.OpenOrders(ctx, cmd.Symbol)
	if err != nil {
		return "❗️ " + err.Error()
	}
	return formatOrders(orders)
}
