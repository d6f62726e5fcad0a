package main

import (
	"AssistantCLI/internal/ai"
	"AssistantCLI/internal/app/conversation"
	"AssistantCLI/internal/app/poller"
	"AssistantCLI/internal/config"
	"AssistantCLI/internal/service/notify"
	"AssistantCLI/internal/service/notify/player"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return configExitCode(err, os.Stderr)
	}

	logger, err := newLogger(cfg.DebugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	sessionID := uuid.NewString()
	sugar := logger.Sugar().With("session", sessionID)
	//сброс буфера логгера
	defer func() { _ = logger.Sync() }()

	// Ctrl+C / SIGTERM прерывают и ожидание ввода, и опрос запуска
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	sugar.Infow(
		"Starting app",
		"DebugMode", cfg.DebugMode,
		"Model", cfg.Assistant.Model,
		"PollInterval", cfg.PollInterval.String(),
		"PollTimeout", cfg.PollTimeout.String(),
		"Interactive", interactive,
	)

	oClient := ai.NewOpenAIClient(ai.ClientConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		RequestTimeout: cfg.RequestTimeout,
	})
	api := ai.NewAssistantsClient(&oClient, sugar)

	loop := conversation.New(
		api,
		poller.New(api, cfg.PollInterval, cfg.PollTimeout, sugar),
		os.Stdout,
		conversation.Options{
			Assistant: ai.AssistantSpec{
				Model:        cfg.Assistant.Model,
				Name:         cfg.Assistant.Name,
				Instructions: cfg.Assistant.Instructions,
			},
			RunInstructions: cfg.Assistant.RunInstructions,
			SessionID:       sessionID,
			Interactive:     interactive,
			Notifier:        newNotifier(cfg.NotificationSoundPath, sugar),
		},
		sugar,
	)

	return exitCode(loop.Run(ctx, os.Stdin), os.Stdout, os.Stderr, sugar)
}

// configExitCode -h печатает справку (её уже вывел config.Load) и завершает успешно.
func configExitCode(err error, stderr io.Writer) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
	return 1
}

// exitCode код завершения по результату диалога. Фатальная ошибка печатается в stderr
// один раз; в лог она уходит только на уровне debug.
func exitCode(err error, stdout, stderr io.Writer, logger *zap.SugaredLogger) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		_, _ = fmt.Fprintln(stdout)
		logger.Infow("Interrupted")
		return 130
	default:
		logger.Debugw("Conversation stopped", "error", err, "fatal", ai.IsFatal(err))
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

// newNotifier звук при ответе ассистента, если задан файл.
func newNotifier(path string, logger *zap.SugaredLogger) conversation.ReplyNotifier {
	if path == "" {
		return nil
	}
	logger.Infow("Reply sound enabled", "path", path)
	return notify.NewSoundNotifier(logger, path, player.New())
}

// newLogger в режиме дебага development-логгер, иначе production только с предупреждениями,
// чтобы логи не мешали диалогу в терминале.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return zcfg.Build()
}
