// Package messaging provides the Telegram-backed channel gateway.
//
// Campaign sub-channels are Telegram forum topics. The bot API library
// predates the topics API, so topic calls go through MakeRequest directly.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/groundworkhq/campaigner/internal/models"
)

// Opts holds configuration options for the Telegram service.
type Opts struct {
	Token         string
	UpdateTimeout int
	SendRate      float64
	SendBurst     int
}

// Option configures the Telegram service.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithUpdateTimeout sets the long-poll timeout in seconds.
func WithUpdateTimeout(seconds int) Option {
	return func(o *Opts) { o.UpdateTimeout = seconds }
}

// WithSendRate bounds outbound sends per second.
func WithSendRate(perSecond float64, burst int) Option {
	return func(o *Opts) {
		o.SendRate = perSecond
		o.SendBurst = burst
	}
}

// TelegramService implements Service over the Telegram Bot API.
type TelegramService struct {
	bot           *tgbotapi.BotAPI
	updates       chan models.Inbound
	limiter       *rate.Limiter
	topics        *topicRegistry
	updateTimeout int
	cancel        context.CancelFunc
}

// topicRegistry remembers which forum topic each bot-sent message went to, so
// an explicit reply to one of them resolves to the topic instead of to the
// replied-to message id.
type topicRegistry struct {
	mu     sync.Mutex
	topics map[int]int
}

func newTopicRegistry() *topicRegistry {
	return &topicRegistry{topics: make(map[int]int)}
}

func (r *topicRegistry) remember(messageID, topicID int) {
	if messageID == 0 || topicID == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[messageID] = topicID
}

// resolve maps a reply target to its topic. Unknown targets resolve to the
// target id itself: a plain topic message replies to the topic opener, whose
// id equals the topic id, and the dispatcher validates the result against the
// sub-channel table either way.
func (r *topicRegistry) resolve(replyToID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if topicID, ok := r.topics[replyToID]; ok {
		return topicID
	}
	return replyToID
}

// NewTelegramService creates the gateway and validates the token by fetching
// the bot identity.
func NewTelegramService(opts ...Option) (*TelegramService, error) {
	cfg := Opts{UpdateTimeout: 60, SendRate: 25, SendBurst: 5}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)
	return &TelegramService{
		bot:           bot,
		updates:       make(chan models.Inbound, 64),
		limiter:       rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		topics:        newTopicRegistry(),
		updateTimeout: cfg.UpdateTimeout,
	}, nil
}

// BotID returns the bot account id.
func (t *TelegramService) BotID() int64 {
	return t.bot.Self.ID
}

// Updates returns the inbound event stream.
func (t *TelegramService) Updates() <-chan models.Inbound {
	return t.updates
}

// Start begins long-polling for updates and converting them to inbound events.
func (t *TelegramService) Start(ctx context.Context) error {
	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.updateTimeout
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		defer close(t.updates)
		for {
			select {
			case <-ctx.Done():
				slog.Debug("TelegramService polling stopped")
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.From == nil {
					continue
				}
				inbound, err := t.toInbound(update.Message)
				if err != nil {
					slog.Error("TelegramService failed to convert update", "error", err, "chatID", update.Message.Chat.ID)
					continue
				}
				select {
				case t.updates <- inbound:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	slog.Info("TelegramService started", "timeout", t.updateTimeout)
	return nil
}

// Stop stops polling; the updates channel is closed once the loop drains.
func (t *TelegramService) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.bot.StopReceivingUpdates()
}

// toInbound converts a Telegram message to the gateway's inbound event. The
// library drops message_thread_id, but a message inside a forum topic always
// carries a reply: to the topic's opener (whose id equals the topic id) for
// plain messages, or to the replied-to message for explicit replies. The
// topic registry resolves the latter for messages the bot itself sent; the
// dispatcher validates the candidate against the sub-channel table, so plain
// replies in the general channel resolve to the general location.
func (t *TelegramService) toInbound(m *tgbotapi.Message) (models.Inbound, error) {
	inbound := models.Inbound{
		ChannelID: m.Chat.ID,
		UserID:    m.From.ID,
		Text:      m.Text,
	}
	if inbound.Text == "" {
		inbound.Text = m.Caption
	}
	if m.ReplyToMessage != nil {
		inbound.SubChannelID = t.topics.resolve(m.ReplyToMessage.MessageID)
	}
	if m.Document != nil {
		data, err := t.downloadDocument(m.Document)
		if err != nil {
			return inbound, fmt.Errorf("download document: %w", err)
		}
		inbound.Document = &models.Document{Name: m.Document.FileName, Data: data}
	}
	return inbound, nil
}

func (t *TelegramService) downloadDocument(doc *tgbotapi.Document) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(doc.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// SendMessage delivers text, targeting a forum topic when subChannelID is set.
func (t *TelegramService) SendMessage(ctx context.Context, channelID int64, subChannelID int, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", channelID)
	params.AddNonEmpty("text", text)
	params.AddNonZero("message_thread_id", subChannelID)
	resp, err := t.bot.MakeRequest("sendMessage", params)
	if err != nil {
		slog.Error("TelegramService SendMessage failed", "error", err, "channelID", channelID, "subChannelID", subChannelID)
		return fmt.Errorf("send message: %w", err)
	}
	if subChannelID != 0 {
		var sent struct {
			MessageID int `json:"message_id"`
		}
		if err := json.Unmarshal(resp.Result, &sent); err == nil {
			t.topics.remember(sent.MessageID, subChannelID)
		}
	}
	return nil
}

// SendFile uploads a document. Replying to the topic opener places the
// document inside the topic.
func (t *TelegramService) SendFile(ctx context.Context, channelID int64, subChannelID int, data []byte, fileName string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(channelID, tgbotapi.FileBytes{Name: fileName, Bytes: data})
	doc.ReplyToMessageID = subChannelID
	sent, err := t.bot.Send(doc)
	if err != nil {
		slog.Error("TelegramService SendFile failed", "error", err, "channelID", channelID, "fileName", fileName)
		return fmt.Errorf("send file: %w", err)
	}
	t.topics.remember(sent.MessageID, subChannelID)
	return nil
}

// CreateSubChannel creates a forum topic and returns its thread id.
func (t *TelegramService) CreateSubChannel(ctx context.Context, channelID int64, name string) (int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", channelID)
	params.AddNonEmpty("name", name)
	resp, err := t.bot.MakeRequest("createForumTopic", params)
	if err != nil {
		slog.Error("TelegramService CreateSubChannel failed", "error", err, "channelID", channelID, "name", name)
		return 0, fmt.Errorf("create forum topic: %w", err)
	}
	var topic struct {
		MessageThreadID int `json:"message_thread_id"`
	}
	if err := json.Unmarshal(resp.Result, &topic); err != nil {
		return 0, fmt.Errorf("decode forum topic response: %w", err)
	}
	if topic.MessageThreadID == 0 {
		return 0, fmt.Errorf("forum topic response missing thread id: %s", strconv.Quote(string(resp.Result)))
	}
	slog.Info("TelegramService sub-channel created", "channelID", channelID, "subChannelID", topic.MessageThreadID, "name", name)
	return topic.MessageThreadID, nil
}
