// Package telegram wraps the bot transport for status updates and media
// delivery.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/clipfetch/clipfetch/internal/domain"
)

// sender is the slice of the bot API the client uses; the concrete
// *tgbotapi.BotAPI satisfies it.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config holds delivery behavior.
type Config struct {
	VideoTimeout time.Duration
	AudioTimeout time.Duration
	CaptionMax   int
}

// Client sends status messages and media files over Telegram.
type Client struct {
	api    sender
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a delivery client on top of an authorized bot API.
func NewClient(api *tgbotapi.BotAPI, cfg Config, logger *slog.Logger) *Client {
	return &Client{api: api, cfg: cfg, logger: logger}
}

// SendStatus sends a new status message and returns its reference for later
// edits.
func (c *Client) SendStatus(chatID int64, text string) (domain.MessageRef, error) {
	msg, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("send status: %w", err)
	}
	return domain.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// EditStatus rewrites an existing status message in place.
func (c *Client) EditStatus(ref domain.MessageRef, text string) error {
	if ref.Zero() {
		return fmt.Errorf("edit status: empty message reference")
	}
	if _, err := c.api.Send(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)); err != nil {
		return fmt.Errorf("edit status: %w", err)
	}
	return nil
}

// SendMedia uploads the artifact with a bounded caption. A transport
// throttle surfaces as *domain.RetryAfterError so the caller can decide how
// to wait; any other failure is permanent.
func (c *Client) SendMedia(ctx context.Context, chatID int64, path string, kind domain.Kind, caption string) error {
	caption = domain.Truncate(caption, c.cfg.CaptionMax)

	var msg tgbotapi.Chattable
	timeout := c.cfg.VideoTimeout
	if kind == domain.KindAudio {
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(path))
		audio.Caption = caption
		msg = audio
		timeout = c.cfg.AudioTimeout
	} else {
		video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
		video.Caption = caption
		msg = video
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The bot API has no context support, so the send runs in its own
	// goroutine and the upload is abandoned on timeout.
	done := make(chan error, 1)
	go func() {
		_, err := c.api.Send(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", domain.ErrDeliveryFailed, ctx.Err())
	case err := <-done:
		if err == nil {
			return nil
		}
		return mapSendError(err)
	}
}

func mapSendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &domain.RetryAfterError{Delay: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	return fmt.Errorf("%w: %s", domain.ErrDeliveryFailed, err)
}
