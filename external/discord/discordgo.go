package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/sessiondesk/internal/discord"
)

const (
	maxSendRetries     = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 8 * time.Second
)

var ErrNotConnected = errors.New("discord session is not connected")

// Client talks to Discord through a bot session that only needs the guilds
// intent; it never reads messages.
type Client struct {
	token   string
	session *discordgo.Session

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewClient(token string) discordpkg.Client {
	return &Client{
		token:       token,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds)

	opened := make(chan error, 1)
	go func() { opened <- s.Open() }()
	select {
	case err := <-opened:
		if err != nil {
			return fmt.Errorf("open discord gateway: %w", err)
		}
	case <-ctx.Done():
		// Open has no cancellation; close whatever it managed to open.
		go func() {
			if <-opened == nil {
				_ = s.Close()
			}
		}()
		return ctx.Err()
	}
	c.session = s
	return nil
}

func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *Client) SendChannelMessage(ctx context.Context, channelID, content string) error {
	if c.session == nil {
		return ErrNotConnected
	}
	return c.withRetry(ctx, func() error {
		_, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
		return err
	})
}

// ResolveChannelName prefers the gateway state cache and falls back to REST.
func (c *Client) ResolveChannelName(ctx context.Context, channelID string) (string, error) {
	if c.session == nil {
		return "", ErrNotConnected
	}
	if c.session.State != nil {
		if ch, err := c.session.State.Channel(channelID); err == nil && ch != nil && ch.Name != "" {
			return ch.Name, nil
		}
	}
	var name string
	err := c.withRetry(ctx, func() error {
		ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		name = ch.Name
		return nil
	})
	if restStatus(err) == http.StatusNotFound {
		return "", fmt.Errorf("channel %s not found", channelID)
	}
	return name, err
}

// withRetry retries fn with exponential backoff while Discord answers with
// a rate limit or a server error.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	wait := c.baseBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || attempt > maxSendRetries || !retryableStatus(restStatus(err)) {
			return err
		}
		slog.Warn("discord request failed; retrying",
			"error", err,
			"attempt", attempt,
			"wait", wait,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, c.maxBackoff)
	}
}

// restStatus returns the HTTP status behind a discordgo REST error, or 0.
func restStatus(err error) int {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return 0
	}
	return restErr.Response.StatusCode
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
