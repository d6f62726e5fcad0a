package conversation

import (
	"AssistantCLI/internal/ai"
	"AssistantCLI/internal/app/poller"
	"AssistantCLI/internal/service/printer"
	"AssistantCLI/internal/service/seen"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	Prompt      = ">> "
	ExitCommand = "exit"

	// Ожидание перехода отменённого запуска из cancelling в конечный статус.
	CancelPollInterval = 500 * time.Millisecond
	CancelWaitTimeout  = 30 * time.Second
)

// Awaiter ожидание конечного статуса запуска.
type Awaiter interface {
	Await(ctx context.Context, threadID, runID string) (ai.RunStatus, error)
}

// ReplyNotifier сигнал о пришедшем ответе (например, звук).
type ReplyNotifier interface {
	NotifyReply(ctx context.Context) error
}

type Options struct {
	Assistant       ai.AssistantSpec
	RunInstructions string
	// SessionID попадает в metadata треда; если пусто, без metadata.
	SessionID string
	// Interactive печатать приветствие.
	Interactive bool
	// Seen множество уже показанных сообщений; nil: новое пустое.
	Seen *seen.Set
	// Notifier вызывается после вывода ответа; nil: без уведомлений.
	Notifier ReplyNotifier
	// CancelAwaiter ждёт завершения отменённого запуска; nil: поллер с CancelPollInterval/CancelWaitTimeout.
	CancelAwaiter Awaiter
}

// Loop диалог: одно сообщение пользователя обрабатывается целиком до чтения следующего.
type Loop struct {
	api     ai.AssistantsAPI
	poller  Awaiter
	settle  Awaiter
	printer *printer.Printer
	seen    *seen.Set
	opts    Options
	out     io.Writer
	logger  *zap.SugaredLogger

	assistant ai.Assistant
	thread    ai.Thread
}

func New(api ai.AssistantsAPI, p Awaiter, out io.Writer, opts Options, logger *zap.SugaredLogger) *Loop {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	set := opts.Seen
	if set == nil {
		set = seen.New()
	}
	settle := opts.CancelAwaiter
	if settle == nil {
		settle = poller.New(api, CancelPollInterval, CancelWaitTimeout, logger)
	}
	return &Loop{
		api:     api,
		poller:  p,
		settle:  settle,
		printer: printer.New(out),
		seen:    set,
		opts:    opts,
		out:     out,
		logger:  logger,
	}
}

// Seen множество показанных сообщений сессии.
func (l *Loop) Seen() *seen.Set { return l.seen }

// Thread тред сессии (пустой до Start).
func (l *Loop) Thread() ai.Thread { return l.thread }

// IsExit true, если строка является командой выхода (без учёта регистра и пробелов по краям).
func IsExit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), ExitCommand)
}

// Start создаёт ассистента и тред. Повторный вызов ничего не делает.
func (l *Loop) Start(ctx context.Context) error {
	if l.assistant.ID == "" {
		asst, err := l.api.CreateAssistant(ctx, l.opts.Assistant)
		if err != nil {
			return err
		}
		l.assistant = asst
	}

	if l.thread.ID == "" {
		var metadata map[string]string
		if l.opts.SessionID != "" {
			metadata = map[string]string{"session_id": l.opts.SessionID}
		}
		th, err := l.api.CreateThread(ctx, metadata)
		if err != nil {
			return err
		}
		l.thread = th
	}

	l.logger.Infow("Session ready", "assistant_id", l.assistant.ID, "thread_id", l.thread.ID, "model", l.assistant.Model)
	return nil
}

// Run запускает диалог и читает in до команды выхода или конца ввода.
// Ошибки транспорта и разбора ответов завершают диалог и возвращаются вызывающему.
func (l *Loop) Run(ctx context.Context, in io.Reader) error {
	if in == nil {
		return errors.New("input reader is required")
	}
	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if l.opts.Interactive {
		printWelcome(l.out)
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines := readLines(readCtx, in)
	for {
		_, _ = fmt.Fprint(l.out, Prompt)

		var ln line
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case ln = <-lines:
		}
		if ln.err != nil {
			return fmt.Errorf("read input: %w", ln.err)
		}
		if ln.eof && ln.text == "" {
			l.logger.Debugw("Input closed")
			return nil
		}
		if IsExit(ln.text) {
			l.logger.Debugw("Exit requested")
			return nil
		}

		text := strings.TrimRight(ln.text, "\r\n")
		if strings.TrimSpace(text) != "" {
			if err := l.Turn(ctx, text); err != nil {
				return err
			}
		}
		if ln.eof {
			return nil
		}
	}
}

// Turn один обмен: отправка, вывод накопившегося, запуск, ожидание, вывод ответа.
func (l *Loop) Turn(ctx context.Context, text string) error {
	if _, err := l.api.PostMessage(ctx, l.thread.ID, text); err != nil {
		return err
	}
	if err := l.printNew(ctx); err != nil {
		return err
	}

	run, err := l.api.StartRun(ctx, l.thread.ID, l.assistant.ID, l.opts.RunInstructions)
	if err != nil {
		return err
	}

	start := time.Now()
	status, err := l.poller.Await(ctx, l.thread.ID, run.ID)
	if errors.Is(err, poller.ErrTimeout) {
		l.cancelRun(ctx, run.ID)
		_, _ = fmt.Fprintln(l.out, "Ассистент не ответил вовремя, запуск отменён")
		return nil
	}
	if err != nil {
		return err
	}
	l.logger.Infow("Run finished", "run_id", run.ID, "status", status, "duration", time.Since(start).String())

	switch status {
	case ai.RunStatusCompleted:
		if err := l.printNew(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(l.out)
		l.notifyReply(ctx)
	case ai.RunStatusRequiresAction:
		_, _ = fmt.Fprintln(l.out, "Запуск требует действия: вызовы инструментов не поддерживаются")
	default:
		l.logger.Warnw("Run ended without reply", "run_id", run.ID, "status", status)
		_, _ = fmt.Fprintf(l.out, "Неизвестная ошибка: запуск завершился со статусом %q\n", string(status))
	}
	return nil
}

func (l *Loop) printNew(ctx context.Context) error {
	msgs, err := l.api.ListMessages(ctx, l.thread.ID)
	if err != nil {
		return err
	}
	printed := l.printer.Print(msgs, l.seen)
	l.logger.Debugw("Messages printed", "listed", len(msgs), "printed", len(printed), "seen", l.seen.Len())
	return nil
}

// cancelRun освобождает тред от зависшего запуска. Пока запуск в cancelling, сервис
// не принимает новые сообщения в тред, поэтому ждём конечного статуса.
// Ошибки не фатальны: запуск мог успеть завершиться сам.
func (l *Loop) cancelRun(ctx context.Context, runID string) {
	run, err := l.api.CancelRun(ctx, l.thread.ID, runID)
	if err != nil {
		l.logger.Warnw("Failed to cancel run", "run_id", runID, "error", err)
		return
	}
	if run.Status.Terminal() {
		return
	}

	status, err := l.settle.Await(ctx, l.thread.ID, runID)
	if err != nil {
		l.logger.Warnw("Cancelled run did not settle", "run_id", runID, "status", status, "error", err)
		return
	}
	l.logger.Debugw("Cancelled run settled", "run_id", runID, "status", status)
}

func (l *Loop) notifyReply(ctx context.Context) {
	if l.opts.Notifier == nil {
		return
	}
	if err := l.opts.Notifier.NotifyReply(ctx); err != nil {
		l.logger.Debugw("Reply notification failed", "error", err)
	}
}

func printWelcome(out io.Writer) {
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Чат с ассистентом OpenAI")
	_, _ = fmt.Fprintln(out, "Пишите вопрос после символа >>")
	_, _ = fmt.Fprintf(out, "Для выхода введите %q\n", ExitCommand)
	_, _ = fmt.Fprintln(out)
}

type line struct {
	text string
	eof  bool
	err  error
}

// readLines читает ввод в отдельной горутине, чтобы ожидание строки прерывалось отменой контекста.
// Следующая строка забирается только после завершения текущего обмена.
func readLines(ctx context.Context, in io.Reader) <-chan line {
	ch := make(chan line)
	go func() {
		defer close(ch)
		r := bufio.NewReader(in)
		for {
			s, err := r.ReadString('\n')
			var ln line
			switch {
			case err == nil:
				ln = line{text: s}
			case errors.Is(err, io.EOF):
				ln = line{text: s, eof: true}
			default:
				ln = line{err: err}
			}

			select {
			case ch <- ln:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
