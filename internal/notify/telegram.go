package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/httpclient"
	"solana-signal-engine/internal/observability"
)

// DefaultTelegramURL is the Bot API base URL.
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramConfig configures the Bot API notifier.
type TelegramConfig struct {
	BaseURL string // default DefaultTelegramURL
	Token   string
	ChatID  string
}

// TelegramNotifier posts signals to a chat with sendMessage.
type TelegramNotifier struct {
	client  *httpclient.Client
	baseURL string
	token   string
	chatID  string
	logger  *zap.Logger
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier creates a notifier.
func NewTelegramNotifier(client *httpclient.Client, cfg TelegramConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, errors.New("telegram notifier: token and chat id are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTelegramURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramNotifier{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		logger:  logger.Named("telegram"),
	}, nil
}

// Dispatch implements Dispatcher.
func (t *TelegramNotifier) Dispatch(ctx context.Context, v domain.SignalView) error {
	req := sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  FormatSignal(v),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	var resp sendMessageResponse
	err := t.client.PostJSON(ctx, t.baseURL+"/bot"+t.token+"/sendMessage", req, &resp)
	if err == nil && !resp.OK {
		err = fmt.Errorf("sendMessage rejected: %s", resp.Description)
	}
	observability.RecordNotification("telegram", err)
	if err != nil {
		// Errors carry the request URL, which embeds the bot token.
		return fmt.Errorf("telegram: %s", strings.ReplaceAll(err.Error(), t.token, "<token>"))
	}
	t.logger.Debug("signal sent", zap.String("address", v.Signal.AssetAddress))
	return nil
}

// FormatSignal renders the chat message for a signal.
func FormatSignal(v domain.SignalView) string {
	var b strings.Builder
	symbol := v.Asset.Symbol
	if symbol == "" {
		symbol = "?"
	}
	fmt.Fprintf(&b, "<b>Signal: %s</b>", html.EscapeString(symbol))
	if v.Asset.Name != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(v.Asset.Name))
	}
	fmt.Fprintf(&b, "\nScore: %d/100\nCredible wallets: %d", v.Signal.Score, v.Signal.MatchCount)
	if v.Asset.MarketCapAtScan > 0 {
		fmt.Fprintf(&b, "\nMarket cap: $%.0f", v.Asset.MarketCapAtScan)
	}
	fmt.Fprintf(&b, "\n<code>%s</code>", v.Signal.AssetAddress)
	return b.String()
}
