package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/clipfetch/clipfetch/internal/session"
)

// mainMenu is the persistent main keyboard.
func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(session.ButtonVideo),
			tgbotapi.NewKeyboardButton(session.ButtonAudio),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(session.ButtonHelp),
			tgbotapi.NewKeyboardButton(session.ButtonCancel),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// cancelOnly is the keyboard shown while waiting for a link.
func cancelOnly() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(session.ButtonCancel),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// SendMenu sends text with the main menu keyboard attached.
func (c *Client) SendMenu(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenu()
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send menu: %w", err)
	}
	return nil
}

// SendCancelPrompt sends text with only the cancel button attached.
func (c *Client) SendCancelPrompt(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = cancelOnly()
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send cancel prompt: %w", err)
	}
	return nil
}
