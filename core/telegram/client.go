package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// AllowedUpdates lists the update kinds the bot subscribes to.
var AllowedUpdates = []string{"message", "callback_query"}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Token string
	// URL overrides the Bot API base URL.
	URL        string
	PollWait   time.Duration
	HTTPClient *http.Client
	Sender     *sender.Dispatcher
}

// Client is the bot's view of the Telegram Bot API. Outbound calls run
// through the sender dispatcher so they share one retry policy.
type Client struct {
	bot    *tele.Bot
	sender *sender.Dispatcher
}

// NewClient builds a client without contacting Telegram.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram: empty token")
	}
	if opts.Sender == nil {
		return nil, errors.New("telegram: sender dispatcher is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = BuildHTTPClient(opts.PollWait)
	}
	bot, err := tele.NewBot(tele.Settings{
		URL:     opts.URL,
		Token:   opts.Token,
		Client:  httpClient,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return &Client{bot: bot, sender: opts.Sender}, nil
}

type rawResult struct {
	data []byte
	err  error
}

// raw issues a Bot API call in the background so ctx cancellation returns promptly.
func (c *Client) raw(ctx context.Context, method string, params any) ([]byte, error) {
	done := make(chan rawResult, 1)
	go func() {
		data, err := c.bot.Raw(method, params)
		done <- rawResult{data: data, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.data, r.err
	}
}

// Me returns the bot's own account.
func (c *Client) Me(ctx context.Context) (*tele.User, error) {
	data, err := c.raw(ctx, "getMe", map[string]any{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result tele.User `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("telegram: decode getMe: %w", err)
	}
	return &resp.Result, nil
}

// Poll long-polls getUpdates starting at offset.
func (c *Client) Poll(ctx context.Context, offset, limit int, wait time.Duration) ([]tele.Update, error) {
	params := map[string]any{
		"offset":          offset,
		"limit":           limit,
		"timeout":         int(wait / time.Second),
		"allowed_updates": AllowedUpdates,
	}
	data, err := c.raw(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("telegram: decode getUpdates: %w", err)
	}
	return resp.Result, nil
}

// DeleteWebhook removes any webhook so long polling is not rejected with 409.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.raw(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": false})
	return err
}

// Send delivers msg to chatID and returns the new message id.
func (c *Client) Send(ctx context.Context, chatID int64, msg Message) (int, error) {
	var sent *tele.Message
	err := c.sender.Do(ctx, "send", "sendMessage", func() error {
		m, err := c.bot.Send(tele.ChatID(chatID), msg.Text, msg.sendOptions())
		if err != nil {
			return err
		}
		sent = m
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent == nil {
		return 0, nil
	}
	return sent.ID, nil
}

// SendAsync queues msg for chatID on the sender's worker pool and returns
// without waiting for delivery.
func (c *Client) SendAsync(ctx context.Context, chatID int64, msg Message) error {
	return c.sender.Enqueue(ctx, "send_async", "sendMessage", func() error {
		_, err := c.bot.Send(tele.ChatID(chatID), msg.Text, msg.sendOptions())
		return err
	})
}

// Edit replaces the text and keyboard of an existing message. An edit that
// would not change anything is not an error.
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, msg Message) error {
	target := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	err := c.sender.Do(ctx, "edit", "editMessageText", func() error {
		_, err := c.bot.Edit(target, msg.Text, msg.sendOptions())
		return err
	})
	if IsNotModified(err) {
		return nil
	}
	return err
}

// Delete removes a message.
func (c *Client) Delete(ctx context.Context, chatID int64, messageID int) error {
	target := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	return c.sender.Do(ctx, "delete", "deleteMessage", func() error {
		return c.bot.Delete(target)
	})
}

// Ack answers a callback query, optionally with a toast.
func (c *Client) Ack(ctx context.Context, callbackID, toast string) error {
	if callbackID == "" {
		return nil
	}
	return c.sender.Do(ctx, "ack", "answerCallbackQuery", func() error {
		return c.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: toast})
	})
}

// SetCommands publishes the visible command menu.
func (c *Client) SetCommands(ctx context.Context, reg *Registry) error {
	cmds := reg.ListCommands(true)
	err := c.sender.Do(ctx, "set_commands", "setMyCommands", func() error {
		return c.bot.SetCommands(cmds)
	})
	if err != nil {
		logger.TWire.LogAttrs(ctx, slog.LevelError, "register.commands.set_failed",
			slog.String("err", sender.SanitizeError(err)),
		)
		return err
	}
	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "register.commands.set",
		slog.Int("count", len(cmds)),
	)
	return nil
}

// IsNotModified reports Telegram's reply to an edit with identical content.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

// IsUneditable reports edit failures that a fresh send can recover from.
func IsUneditable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"message to edit not found",
		"message can't be edited",
		"message_id_invalid",
		"there is no text in the message to edit",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
