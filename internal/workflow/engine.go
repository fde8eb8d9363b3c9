// engine.go — исполнение запусков процессов.
// Движок запускает каждый процесс в отдельной горутине, журналирует
// результат каждого шага и умеет возобновлять незавершённые запуски
// после рестарта, переигрывая журнал вместо повторного исполнения
// уже завершённых шагов.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --- метрики ---

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_workflow_runs_total",
		Help: "Количество завершённых запусков процессов по статусам",
	}, []string{"workflow", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ar_workflow_run_duration_seconds",
		Help:    "Длительность запусков процессов",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"workflow"})

	activityAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_workflow_activity_attempts_total",
		Help: "Количество попыток выполнения активностей по исходам",
	}, []string{"activity", "outcome"})
)

// --- ошибки ---

// ErrUnknownWorkflow — запуск ссылается на незарегистрированный процесс.
var ErrUnknownWorkflow = errors.New("неизвестный процесс")

// ActivityError — активность исчерпала все попытки выполнения.
// Оборачивает последнюю ошибку.
type ActivityError struct {
	// Activity — имя активности
	Activity string
	// Attempts — количество сделанных попыток
	Attempts int
	// Err — последняя ошибка
	Err error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("активность %s: исчерпаны %d попыток: %v", e.Activity, e.Attempts, e.Err)
}

func (e *ActivityError) Unwrap() error {
	return e.Err
}

// --- движок ---

// WorkflowFunc — функция процесса. Все побочные эффекты она обязана
// выполнять через rc.Execute, иначе они не попадут в журнал и будут
// повторены после рестарта.
type WorkflowFunc func(ctx context.Context, rc *RunContext, args json.RawMessage) (any, error)

// ActivityOptions — политика выполнения одной активности.
type ActivityOptions struct {
	// Timeout — предельная длительность одной попытки
	Timeout time.Duration
	// MaxAttempts — максимум попыток (включая первую)
	MaxAttempts int
	// InitialBackoff — пауза перед второй попыткой
	InitialBackoff time.Duration
	// MaxBackoff — потолок паузы между попытками
	MaxBackoff time.Duration
}

// Engine — движок долговечных процессов.
type Engine struct {
	journal *Journal
	logger  *slog.Logger

	mu        sync.Mutex
	workflows map[string]WorkflowFunc

	// baseCtx отменяется при Shutdown, чтобы прервать активности
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Handle — дескриптор запущенного процесса.
type Handle struct {
	// RunID — UUID запуска
	RunID string

	done chan struct{}
	run  *Run
}

// Done закрывается после достижения запуском терминального статуса.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Run возвращает финальное состояние запуска.
// Корректно вызывать только после закрытия Done.
func (h *Handle) Run() *Run {
	return h.run
}

// NewEngine создаёт движок поверх дискового журнала.
func NewEngine(journal *Journal, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		journal:   journal,
		logger:    logger,
		workflows: make(map[string]WorkflowFunc),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Register регистрирует функцию процесса под именем.
func (e *Engine) Register(name string, fn WorkflowFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[name] = fn
}

// Submit создаёт новый запуск процесса и начинает его выполнение
// в фоне. Запуск журналируется до старта, поэтому он переживёт
// рестарт процесса даже если ни один шаг ещё не выполнен.
func (e *Engine) Submit(ctx context.Context, workflow string, args any) (*Handle, error) {
	e.mu.Lock()
	fn, ok := e.workflows[workflow]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
	}

	rawArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("сериализация аргументов процесса %s: %w", workflow, err)
	}

	now := time.Now().UTC()
	run := &Run{
		RunID:     uuid.NewString(),
		Workflow:  workflow,
		Args:      rawArgs,
		Status:    StatusPending,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := e.journal.Save(run); err != nil {
		return nil, err
	}

	e.logger.Info("Запуск процесса",
		slog.String("workflow", workflow),
		slog.String("run_id", run.RunID))

	return e.spawn(run, fn), nil
}

// Resume сканирует журнал и возобновляет все незавершённые запуски.
// Вызывается один раз при старте сервиса.
func (e *Engine) Resume() (int, error) {
	pending, err := e.journal.LoadPending()
	if err != nil {
		return 0, err
	}

	for _, run := range pending {
		e.mu.Lock()
		fn, ok := e.workflows[run.Workflow]
		e.mu.Unlock()
		if !ok {
			return 0, fmt.Errorf("%w: %s (запуск %s)", ErrUnknownWorkflow, run.Workflow, run.RunID)
		}

		e.logger.Info("Возобновление незавершённого запуска",
			slog.String("workflow", run.Workflow),
			slog.String("run_id", run.RunID),
			slog.Int("completed_steps", len(run.Steps)))

		e.spawn(run, fn)
	}
	return len(pending), nil
}

// Shutdown останавливает движок: отменяет контекст активностей и
// ждёт завершения горутин до истечения ctx. Запуски, не успевшие
// завершиться, остаются pending в журнале и будут возобновлены
// при следующем старте.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("остановка движка процессов: %w", ctx.Err())
	}
}

// spawn запускает выполнение run в фоновой горутине.
func (e *Engine) spawn(run *Run, fn WorkflowFunc) *Handle {
	h := &Handle{RunID: run.RunID, done: make(chan struct{}), run: run}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(h.done)
		e.execute(run, fn)
	}()
	return h
}

// execute прогоняет функцию процесса до терминального статуса
// и фиксирует итог в журнале.
func (e *Engine) execute(run *Run, fn WorkflowFunc) {
	start := time.Now()
	rc := &RunContext{run: run, journal: e.journal, logger: e.logger}

	result, err := fn(e.baseCtx, rc, run.Args)

	// Отмена контекста при остановке сервиса — не исход процесса:
	// запуск остаётся pending и будет возобновлён после рестарта.
	if err != nil && errors.Is(err, context.Canceled) && e.baseCtx.Err() != nil {
		e.logger.Warn("Запуск прерван остановкой сервиса",
			slog.String("workflow", run.Workflow),
			slog.String("run_id", run.RunID))
		return
	}

	run.UpdatedAt = time.Now().UTC()
	if err != nil {
		run.Status = StatusFailed
		run.ErrorMessage = err.Error()
		e.logger.Error("Процесс завершился ошибкой",
			slog.String("workflow", run.Workflow),
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()))
	} else {
		raw, merr := json.Marshal(result)
		if merr != nil {
			raw = nil
			e.logger.Error("Ошибка сериализации результата процесса",
				slog.String("run_id", run.RunID),
				slog.String("error", merr.Error()))
		}
		run.Status = StatusCompleted
		run.Result = raw
		e.logger.Info("Процесс завершён",
			slog.String("workflow", run.Workflow),
			slog.String("run_id", run.RunID),
			slog.Duration("duration", time.Since(start)))
	}

	if serr := e.journal.Save(run); serr != nil {
		e.logger.Error("Ошибка записи финального состояния запуска",
			slog.String("run_id", run.RunID),
			slog.String("error", serr.Error()))
	}

	runsTotal.WithLabelValues(run.Workflow, run.Status).Inc()
	runDuration.WithLabelValues(run.Workflow).Observe(time.Since(start).Seconds())
}

// --- контекст запуска ---

// RunContext — журналирующий контекст одного запуска.
// Не потокобезопасен: функция процесса выполняет шаги последовательно.
type RunContext struct {
	run     *Run
	journal *Journal
	logger  *slog.Logger
	// cursor — позиция переигрывания в журнале шагов
	cursor int
}

// RunID возвращает UUID текущего запуска.
func (rc *RunContext) RunID() string {
	return rc.run.RunID
}

// Execute выполняет активность с политикой повторов opts.
// При переигрывании журнала уже завершённый шаг с тем же именем
// не исполняется: возвращается сохранённый результат. Если имя
// журнального шага не совпадает (после сбоя выполнение пошло по
// другой ветке), хвост журнала отбрасывается и шаг исполняется заново.
func (rc *RunContext) Execute(ctx context.Context, name string, opts ActivityOptions, fn func(ctx context.Context) (any, error)) (json.RawMessage, error) {
	if rc.cursor < len(rc.run.Steps) {
		step := rc.run.Steps[rc.cursor]
		if step.Name == name {
			rc.cursor++
			rc.logger.Debug("Шаг взят из журнала",
				slog.String("run_id", rc.run.RunID),
				slog.String("activity", name))
			return step.Result, nil
		}

		rc.logger.Warn("Расхождение журнала с ходом выполнения, хвост отброшен",
			slog.String("run_id", rc.run.RunID),
			slog.String("journal_step", step.Name),
			slog.String("requested", name))
		rc.run.Steps = rc.run.Steps[:rc.cursor]
	}

	result, err := rc.executeWithRetry(ctx, name, opts, fn)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("сериализация результата активности %s: %w", name, err)
	}

	rc.run.Steps = append(rc.run.Steps, StepRecord{
		Index:       rc.cursor,
		Name:        name,
		Result:      raw,
		CompletedAt: time.Now().UTC(),
	})
	rc.run.UpdatedAt = time.Now().UTC()
	rc.cursor++

	if err := rc.journal.Save(rc.run); err != nil {
		return nil, err
	}
	return raw, nil
}

// executeWithRetry — попытки выполнения с экспоненциальной паузой.
func (rc *RunContext) executeWithRetry(ctx context.Context, name string, opts ActivityOptions, fn func(ctx context.Context) (any, error)) (any, error) {
	backoff := opts.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		result, err := fn(attemptCtx)
		cancel()

		if err == nil {
			activityAttempts.WithLabelValues(name, "success").Inc()
			return result, nil
		}
		lastErr = err
		activityAttempts.WithLabelValues(name, "error").Inc()

		rc.logger.Warn("Ошибка выполнения активности",
			slog.String("run_id", rc.run.RunID),
			slog.String("activity", name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		if attempt == opts.MaxAttempts {
			break
		}

		// Пауза с джиттером до половины базового интервала
		pause := backoff + time.Duration(rand.Int63n(int64(backoff/2+1)))
		select {
		case <-time.After(pause):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		backoff *= 2
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
	}

	return nil, &ActivityError{Activity: name, Attempts: opts.MaxAttempts, Err: lastErr}
}
