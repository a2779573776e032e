package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ResourceCurator/internal/infrastructure/retry"
	"ResourceCurator/internal/ports"
)

const (
	defaultAPIURL = "https://api.telegram.org"
	// Telegram rejects messages longer than this many characters.
	maxMessageRunes = 4096
)

// ErrMisconfigured is returned when the bot token or chat is missing.
var ErrMisconfigured = errors.New("telegram notifier misconfigured")

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiURL   string
	client   *http.Client
	policy   retry.Policy
	logger   *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// Option customises a Notifier.
type Option func(*Notifier)

// WithAPIURL points the notifier at a different Bot API host.
func WithAPIURL(apiURL string) Option {
	return func(n *Notifier) {
		if apiURL != "" {
			n.apiURL = strings.TrimRight(apiURL, "/")
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(n *Notifier) { n.policy = policy }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiURL:   defaultAPIURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// PublishDigest posts the digest as a plain-text message.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return ErrMisconfigured
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", truncate(digest, maxMessageRunes))
	form.Set("disable_web_page_preview", "true")

	return retry.Do(ctx, n.policy, n.logger, "telegram sendMessage", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return retry.Permanent(fmt.Errorf("new request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		return retry.CheckResponse("telegram sendMessage", resp)
	})
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
