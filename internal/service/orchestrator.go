// orchestrator.go — оркестратор процесса сжатия архива.
// Последовательность из шести журналируемых шагов; при исчерпании
// попыток любого шага выполняется компенсация: архив и его файлы
// переводятся в состояние failed, а процесс завершается
// структурированным результатом, не ошибкой.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/archivarius/internal/domain/model"
	"github.com/bigkaa/archivarius/internal/workflow"
)

// WorkflowCompressArchive — имя процесса сжатия архива.
const WorkflowCompressArchive = "compress-archive"

// Статусы итогового результата процесса.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Политики повторов активностей. Смена состояния — быстрая операция
// с коротким таймаутом; сжатие и удаление работают с диском и
// получают запас по времени.
var (
	stateUpdateOpts = workflow.ActivityOptions{
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
	compressOpts = workflow.ActivityOptions{
		Timeout:        5 * time.Minute,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
	deleteOpts = workflow.ActivityOptions{
		Timeout:        2 * time.Minute,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
)

// CompressArgs — аргументы процесса сжатия.
type CompressArgs struct {
	ArchiveID string   `json:"archive_id"`
	FileIDs   []string `json:"file_ids"`
}

// CompressOutcome — итоговый результат процесса.
type CompressOutcome struct {
	Status         string `json:"status"`
	ArchiveID      string `json:"archive_id"`
	CompressedSize int64  `json:"compressed_size,omitempty"`
	FileCount      int    `json:"file_count,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Orchestrator — регистрация и выполнение процесса сжатия.
type Orchestrator struct {
	activities *Activities
	logger     *slog.Logger
}

// NewOrchestrator создаёт оркестратор поверх набора активностей.
func NewOrchestrator(activities *Activities, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{activities: activities, logger: logger}
}

// Register регистрирует процесс сжатия в движке.
func (o *Orchestrator) Register(e *workflow.Engine) {
	e.Register(WorkflowCompressArchive, o.run)
}

// run — функция процесса сжатия архива.
func (o *Orchestrator) run(ctx context.Context, rc *workflow.RunContext, rawArgs json.RawMessage) (any, error) {
	var args CompressArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("десериализация аргументов процесса: %w", err)
	}

	// exec — журналируемый шаг без результата
	exec := func(name string, opts workflow.ActivityOptions, fn func(ctx context.Context) error) error {
		_, err := rc.Execute(ctx, name, opts, func(actx context.Context) (any, error) {
			return nil, fn(actx)
		})
		return err
	}

	// 1. Архив переходит в compressing
	if err := exec("set-archive-compressing", stateUpdateOpts, func(actx context.Context) error {
		return o.activities.SetArchiveState(actx, args.ArchiveID, model.ArchiveCompressing, "")
	}); err != nil {
		return o.compensate(ctx, rc, args, err)
	}

	// 2. Файлы привязываются к архиву и переходят в archiving
	if err := exec("mark-files-archiving", stateUpdateOpts, func(actx context.Context) error {
		return o.activities.MarkFilesArchiving(actx, args.FileIDs, args.ArchiveID)
	}); err != nil {
		return o.compensate(ctx, rc, args, err)
	}

	// 3. Сжатие байтов в zip
	rawResult, err := rc.Execute(ctx, "compress-files", compressOpts, func(actx context.Context) (any, error) {
		return o.activities.CompressFiles(actx, args.ArchiveID)
	})
	if err != nil {
		return o.compensate(ctx, rc, args, err)
	}
	var result CompressResult
	if err := json.Unmarshal(rawResult, &result); err != nil {
		return nil, fmt.Errorf("десериализация результата сжатия: %w", err)
	}

	// 4. Архив переходит в idle — доступен для скачивания
	if err := exec("set-archive-idle", stateUpdateOpts, func(actx context.Context) error {
		return o.activities.SetArchiveState(actx, args.ArchiveID, model.ArchiveIdle, "")
	}); err != nil {
		return o.compensate(ctx, rc, args, err)
	}

	// 5. Файлы переходят в archived
	if err := exec("mark-files-archived", stateUpdateOpts, func(actx context.Context) error {
		return o.activities.SetFileState(actx, args.FileIDs, model.FileArchived, "")
	}); err != nil {
		return o.compensate(ctx, rc, args, err)
	}

	// 6. Исходные байты и записи файлов удаляются
	if err := exec("delete-files", deleteOpts, func(actx context.Context) error {
		return o.activities.DeleteFiles(actx, args.FileIDs)
	}); err != nil {
		return o.compensate(ctx, rc, args, err)
	}

	return &CompressOutcome{
		Status:         OutcomeCompleted,
		ArchiveID:      args.ArchiveID,
		CompressedSize: result.Size,
		FileCount:      result.FileCount,
	}, nil
}

// compensate переводит архив и все его файлы в состояние failed.
// Ошибки компенсации логируются и пропускаются: компенсация
// делает всё возможное, но не может заблокировать завершение
// процесса. Отмена контекста (остановка сервиса) пробрасывается
// наружу, чтобы запуск остался pending и был возобновлён.
func (o *Orchestrator) compensate(ctx context.Context, rc *workflow.RunContext, args CompressArgs, cause error) (any, error) {
	if errors.Is(cause, context.Canceled) {
		return nil, cause
	}

	o.logger.Error("Процесс сжатия не удался, выполняется компенсация",
		slog.String("archive_id", args.ArchiveID),
		slog.String("run_id", rc.RunID()),
		slog.String("error", cause.Error()))

	msg := cause.Error()

	if _, err := rc.Execute(ctx, "compensate-archive-failed", stateUpdateOpts, func(actx context.Context) (any, error) {
		return nil, o.activities.SetArchiveState(actx, args.ArchiveID, model.ArchiveFailed, msg)
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		o.logger.Error("Компенсация архива не удалась",
			slog.String("archive_id", args.ArchiveID),
			slog.String("error", err.Error()))
	}

	for _, fileID := range args.FileIDs {
		id := fileID
		if _, err := rc.Execute(ctx, "compensate-file-failed-"+id, stateUpdateOpts, func(actx context.Context) (any, error) {
			return nil, o.activities.SetFileState(actx, []string{id}, model.FileFailed, msg)
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			o.logger.Error("Компенсация файла не удалась",
				slog.String("file_id", id),
				slog.String("error", err.Error()))
		}
	}

	return &CompressOutcome{
		Status:    OutcomeFailed,
		ArchiveID: args.ArchiveID,
		Error:     msg,
	}, nil
}
