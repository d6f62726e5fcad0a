package notify

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Player проигрывает аудиопоток указанного формата (mp3, wav).
type Player interface {
	Play(format string, r io.ReadCloser) error
}

// SoundNotifier проигрывает короткий звук, когда пришёл ответ ассистента.
type SoundNotifier struct {
	logger *zap.SugaredLogger
	path   string
	ply    Player
}

// NewSoundNotifier создаёт нотификатор. Пустой путь отключает звук: NotifyReply ничего не делает.
func NewSoundNotifier(logger *zap.SugaredLogger, path string, ply Player) *SoundNotifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SoundNotifier{
		logger: logger,
		path:   strings.TrimSpace(path),
		ply:    ply,
	}
}

// Enabled true, если задан файл и плеер.
func (n *SoundNotifier) Enabled() bool {
	return n != nil && n.path != "" && n.ply != nil
}

// NotifyReply проигрывает звук уведомления. Ошибки логируются и возвращаются,
// вызывающий решает, игнорировать ли их.
func (n *SoundNotifier) NotifyReply(ctx context.Context) error {
	if !n.Enabled() {
		return nil
	}
	// Проверяем отмену контекста до начала
	if err := context.Cause(ctx); err != nil {
		return err
	}

	f, err := os.Open(n.path)
	if err != nil {
		n.logger.Warnw("Не удалось открыть звуковой файл уведомления", "path", n.path, "error", err)
		return err
	}
	defer f.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(n.path), "."))
	if ext == "" {
		ext = "mp3" // по умолчанию
	}

	if err := n.ply.Play(ext, f); err != nil {
		n.logger.Warnw("Не удалось воспроизвести звуковое уведомление", "path", n.path, "error", err)
		return err
	}
	return nil
}
