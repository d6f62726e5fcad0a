package poller

import (
	"AssistantCLI/internal/ai"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 10 * time.Minute
)

// ErrTimeout опрос не дождался конечного статуса за отведённое время.
var ErrTimeout = errors.New("run polling timeout")

// RunGetter точечное чтение статуса запуска.
type RunGetter interface {
	GetRun(ctx context.Context, threadID, runID string) (ai.Run, error)
}

// Poller ждёт, пока запуск не придёт в конечный статус.
type Poller struct {
	runs     RunGetter
	interval time.Duration
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

// New создаёт поллер. Неположительные interval/timeout заменяются значениями по умолчанию.
func New(runs RunGetter, interval, timeout time.Duration, logger *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Poller{runs: runs, interval: interval, timeout: timeout, logger: logger}
}

// Await перед каждым опросом выжидает интервал, затем читает статус.
// Возвращается сразу при конечном статусе (см. ai.RunStatus.Terminal).
// По истечении timeout возвращает последний увиденный статус и ErrTimeout.
// Ошибки GetRun возвращаются без изменений.
func (p *Poller) Await(ctx context.Context, threadID, runID string) (ai.RunStatus, error) {
	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()

	var last ai.RunStatus
	for attempt := 1; ; attempt++ {
		wait := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return last, context.Cause(ctx)
		case <-deadline.C:
			wait.Stop()
			p.logger.Warnw("Run polling timed out", "thread_id", threadID, "run_id", runID, "status", last, "timeout", p.timeout.String())
			return last, ErrTimeout
		case <-wait.C:
		}

		run, err := p.runs.GetRun(ctx, threadID, runID)
		if err != nil {
			return last, err
		}
		last = run.Status
		p.logger.Debugw("Run status", "run_id", runID, "attempt", attempt, "status", last)

		if last.Terminal() {
			return last, nil
		}
		if !last.Known() {
			p.logger.Warnw("Unknown run status, keep polling", "run_id", runID, "status", last)
		}
	}
}
