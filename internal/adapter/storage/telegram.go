package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/sqlkeep/internal/config"
	"github.com/semmidev/sqlkeep/internal/domain"
)

// telegramFileLimit is the largest document a bot may send.
const telegramFileLimit = 50 * 1024 * 1024

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramStorage struct {
	bot        telegramSender
	chatID     int64
	sendFile   bool
	notifyOnly bool
}

func NewTelegram(cfg *config.UploadTarget) (*TelegramStorage, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat_id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramStorage{
		bot:        bot,
		chatID:     chatID,
		sendFile:   cfg.SendFile,
		notifyOnly: cfg.NotifyOnly,
	}, nil
}

// Upload sends the artifact as a document, or only a notification when the
// file is too large or file sending is off.
func (t *TelegramStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	fileInfo, err := os.Stat(localPath)
	if err != nil {
		return domain.ErrUpload.New("failed to stat file: %v", err)
	}
	size := humanize.IBytes(uint64(fileInfo.Size()))

	if t.notifyOnly || !t.sendFile || fileInfo.Size() > telegramFileLimit {
		message := fmt.Sprintf(
			"✅ Backup Created\n\n"+
				"📁 File: %s\n"+
				"📊 Size: %s\n"+
				"🕐 Time: %s",
			remoteName,
			size,
			fileInfo.ModTime().Format("2006-01-02 15:04:05"),
		)

		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, message)); err != nil {
			return domain.ErrUpload.New("failed to send telegram notification: %v", err)
		}
		return nil
	}

	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(localPath))
	doc.Caption = fmt.Sprintf("📦 Backup: %s (%s)", remoteName, size)

	if _, err := t.bot.Send(doc); err != nil {
		return domain.ErrUpload.New("failed to send telegram file: %v", err)
	}
	return nil
}
