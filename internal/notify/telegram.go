package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramProvider delivers messages to recipients identified by a numeric
// chat ID. The bot API client is created on first send because construction
// performs a network call.
type TelegramProvider struct {
	token string

	mu  sync.Mutex
	api *tgbotapi.BotAPI
}

func NewTelegramProvider(token string) *TelegramProvider {
	return &TelegramProvider{token: token}
}

func (p *TelegramProvider) Name() string {
	return "telegram"
}

func (p *TelegramProvider) bot() (*tgbotapi.BotAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.api != nil {
		return p.api, nil
	}
	api, err := tgbotapi.NewBotAPI(p.token)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}
	p.api = api
	return api, nil
}

func (p *TelegramProvider) Send(ctx context.Context, recipient, message string) error {
	if p.token == "" {
		return ErrMissingCredentials
	}

	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("recipient %q is not a telegram chat id: %w", recipient, err)
	}

	api, err := p.bot()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, message)
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}
	return nil
}
