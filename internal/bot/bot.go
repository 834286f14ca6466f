// Package bot routes inbound Telegram updates through the session state
// machine and hands accepted jobs to the pipeline.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/clipfetch/clipfetch/internal/domain"
	"github.com/clipfetch/clipfetch/internal/scheduler"
	"github.com/clipfetch/clipfetch/internal/session"
)

const (
	welcomeText = "👋 Welcome to the YouTube downloader!\n\nPick an action using the buttons below:"
	unknownText = "❌ Unknown command. Please use the buttons below:"
	helpText    = "ℹ️ How to use this bot:\n\n" +
		"1. Press 'Download video' or 'Download audio'\n" +
		"2. Send a link to a YouTube video\n" +
		"3. Wait for processing and receive your file\n\n" +
		"⚠️ Limitations:\n" +
		"- Maximum video length: 1 hour\n" +
		"- Maximum file size: 1.9 GB\n" +
		"- Private videos are not supported"
	askLinkText     = "📌 Send a link to the YouTube video"
	invalidLinkText = "❌ Please send a valid YouTube link.\nExample: https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	cancelledText   = "✅ Cancelled. You are back in the main menu."
	noCancelText    = "❌ There is nothing to cancel right now."
	busyText        = "❗ You already have an active download. Please wait for it to finish."
	fullText        = "⏳ All download slots are busy right now. Please try again in a minute."
)

// messenger is the outbound surface the bot loop needs; *telegram.Client
// satisfies it.
type messenger interface {
	SendStatus(chatID int64, text string) (domain.MessageRef, error)
	SendMenu(chatID int64, text string) error
	SendCancelPrompt(chatID int64, text string) error
}

// jobRunner executes an accepted job to completion; *pipeline.Runner
// satisfies it.
type jobRunner interface {
	Run(ctx context.Context, job *domain.Job, statusRef domain.MessageRef, release func())
}

// updateSource produces inbound updates; *tgbotapi.BotAPI satisfies it.
type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the inbound update loop.
type Bot struct {
	api         updateSource
	msgr        messenger
	sessions    *session.Manager
	sched       *scheduler.Scheduler
	runner      jobRunner
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New creates the bot loop on top of an authorized API.
func New(
	api updateSource,
	msgr messenger,
	sessions *session.Manager,
	sched *scheduler.Scheduler,
	runner jobRunner,
	pollTimeout time.Duration,
	logger *slog.Logger,
) *Bot {
	return &Bot{
		api:         api,
		msgr:        msgr,
		sessions:    sessions,
		sched:       sched,
		runner:      runner,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Run polls for updates until ctx is cancelled. Inbound messages are
// processed in arrival order; accepted jobs run in their own goroutines.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.pollTimeout.Seconds())
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("listening for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := msg.Text

	b.logger.Debug("message received", "user_id", userID, "text", text)

	action := b.sessions.Handle(userID, text)

	var err error
	switch action.Type {
	case session.ActionMenu:
		err = b.msgr.SendMenu(chatID, welcomeText)
	case session.ActionUnknown:
		err = b.msgr.SendMenu(chatID, unknownText)
	case session.ActionHelp:
		err = b.msgr.SendMenu(chatID, helpText)
	case session.ActionAskLink:
		err = b.msgr.SendCancelPrompt(chatID, askLinkText)
	case session.ActionInvalidLink:
		err = b.msgr.SendCancelPrompt(chatID, invalidLinkText)
	case session.ActionCancelled:
		err = b.msgr.SendMenu(chatID, cancelledText)
	case session.ActionNothingToCancel:
		err = b.msgr.SendMenu(chatID, noCancelText)
	case session.ActionSubmit:
		b.startJob(ctx, userID, chatID, action.Kind, action.URL)
	case session.ActionLocked:
		// The session is locked by an in-flight job; say nothing.
	}

	if err != nil {
		b.logger.Warn("failed to reply", "user_id", userID, "error", err)
	}
}

// startJob submits to the scheduler and, on acceptance, creates the status
// message, locks the session, and launches the pipeline.
func (b *Bot) startJob(ctx context.Context, userID, chatID int64, kind domain.Kind, url string) {
	job := domain.NewJob(userID, chatID, kind, url, time.Now())

	release, err := b.sched.Submit(job)
	if err != nil {
		b.rejectJob(chatID, err)
		return
	}

	ref, err := b.msgr.SendStatus(chatID,
		fmt.Sprintf("⏳ Downloading %s… This may take a while.", kind))
	if err != nil {
		// Without a status channel to the user the job is not started.
		release()
		b.sessions.Reset(userID)
		b.logger.Warn("failed to open status message, job dropped",
			"job_id", job.ID, "error", err)
		if sendErr := b.msgr.SendMenu(chatID, "❌ Could not start the download. Please try again."); sendErr != nil {
			b.logger.Warn("failed to report dropped job", "job_id", job.ID, "error", sendErr)
		}
		return
	}

	b.sessions.BeginDownload(userID, ref)
	go b.runner.Run(ctx, job, ref, release)
}

// rejectJob reports a scheduler rejection; the session stays in
// AwaitingLink so the user can retry the link without re-picking a kind.
func (b *Bot) rejectJob(chatID int64, err error) {
	text := fullText
	if errors.Is(err, domain.ErrDuplicateUser) {
		text = busyText
	}
	if sendErr := b.msgr.SendCancelPrompt(chatID, text); sendErr != nil {
		b.logger.Warn("failed to report rejection", "error", sendErr)
	}
}
