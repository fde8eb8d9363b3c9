package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/archivarius/internal/domain/model"
	"github.com/bigkaa/archivarius/internal/repository"
	"github.com/bigkaa/archivarius/internal/workflow"
)

// fastRetries подменяет политики повторов на быстрые для тестов.
func fastRetries(t *testing.T) {
	t.Helper()

	origState, origCompress, origDelete := stateUpdateOpts, compressOpts, deleteOpts
	fast := workflow.ActivityOptions{
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
	stateUpdateOpts, compressOpts, deleteOpts = fast, fast, fast
	t.Cleanup(func() {
		stateUpdateOpts, compressOpts, deleteOpts = origState, origCompress, origDelete
	})
}

// newTestEngine создаёт движок с зарегистрированным процессом сжатия.
func newTestEngine(t *testing.T, env *testEnv) *workflow.Engine {
	t.Helper()

	j, err := workflow.NewJournal(t.TempDir())
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := workflow.NewEngine(j, logger)
	NewOrchestrator(env.acts, logger).Register(e)
	return e
}

// waitOutcome дожидается завершения запуска и разбирает результат.
func waitOutcome(t *testing.T, h *workflow.Handle) *CompressOutcome {
	t.Helper()

	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("процесс сжатия не завершился вовремя")
	}

	run := h.Run()
	if run.Status != workflow.StatusCompleted {
		t.Fatalf("статус запуска: %s (%s)", run.Status, run.ErrorMessage)
	}

	outcome := &CompressOutcome{}
	if err := json.Unmarshal(run.Result, outcome); err != nil {
		t.Fatalf("десериализация результата: %v", err)
	}
	return outcome
}

// TestOrchestrator_HappyPath проверяет полный успешный цикл:
// queued -> compressing -> idle, файлы сжаты и удалены.
func TestOrchestrator_HappyPath(t *testing.T) {
	fastRetries(t)
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedFile(t, "f1", "a.txt", "первый файл")
	env.seedFile(t, "f2", "b.txt", "второй файл")
	env.seedArchive(t, "a1", "f1", "f2")

	e := newTestEngine(t, env)
	h, err := e.Submit(ctx, WorkflowCompressArchive, CompressArgs{
		ArchiveID: "a1",
		FileIDs:   []string{"f1", "f2"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outcome := waitOutcome(t, h)
	if outcome.Status != OutcomeCompleted {
		t.Fatalf("исход: %+v", outcome)
	}
	if outcome.FileCount != 2 || outcome.CompressedSize == 0 {
		t.Errorf("исход: %+v", outcome)
	}

	// Архив доступен для скачивания
	arch, err := env.archives.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get архива: %v", err)
	}
	if arch.State != model.ArchiveIdle || !arch.Downloadable() {
		t.Errorf("архив после сжатия: %+v", arch)
	}
	if _, _, err := env.store.OpenArchive(arch.PayloadPath); err != nil {
		t.Errorf("сжатый архив недоступен: %v", err)
	}

	// Исходные файлы удалены
	for _, id := range []string{"f1", "f2"} {
		if _, err := env.files.Get(ctx, id); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("запись файла %s должна быть удалена, получено: %v", id, err)
		}
		if _, err := env.store.OpenUpload(id); err == nil {
			t.Errorf("байты файла %s должны быть удалены", id)
		}
	}
}

// TestOrchestrator_CompensatesOnFailure проверяет компенсацию:
// при невыполнимом шаге архив и файлы переходят в failed,
// а процесс завершается структурированным результатом.
func TestOrchestrator_CompensatesOnFailure(t *testing.T) {
	fastRetries(t)
	env := newTestEnv(t)
	ctx := context.Background()

	// Запись архива отсутствует — первый шаг исчерпает попытки
	env.seedFile(t, "f1", "a.txt", "данные")

	e := newTestEngine(t, env)
	h, err := e.Submit(ctx, WorkflowCompressArchive, CompressArgs{
		ArchiveID: "missing-archive",
		FileIDs:   []string{"f1"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outcome := waitOutcome(t, h)
	if outcome.Status != OutcomeFailed {
		t.Fatalf("ожидался исход failed, получено: %+v", outcome)
	}
	if outcome.Error == "" {
		t.Error("исход failed должен содержать текст ошибки")
	}

	// Файл переведён в failed с текстом ошибки
	rec, err := env.files.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("Get файла: %v", err)
	}
	if rec.State != model.FileFailed || rec.ErrorMessage == "" {
		t.Errorf("файл после компенсации: %+v", rec)
	}

	// Байты файла не удалены: неудачный пакет можно расследовать
	if _, err := env.store.OpenUpload("f1"); err != nil {
		t.Errorf("байты файла должны сохраниться: %v", err)
	}
}

// TestOrchestrator_FailureMarksArchive проверяет, что при сбое
// позднего шага архив переводится в failed.
func TestOrchestrator_FailureMarksArchive(t *testing.T) {
	fastRetries(t)
	env := newTestEnv(t)
	ctx := context.Background()

	// Файл без байтов на диске: сжатие исчерпает попытки
	now := time.Now().UTC()
	if err := env.files.Upsert(ctx, &model.FileRecord{
		ID:        "f1",
		Filename:  "ghost.txt",
		State:     model.FileUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	env.seedArchive(t, "a1", "f1")

	e := newTestEngine(t, env)
	h, err := e.Submit(ctx, WorkflowCompressArchive, CompressArgs{
		ArchiveID: "a1",
		FileIDs:   []string{"f1"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outcome := waitOutcome(t, h)
	if outcome.Status != OutcomeFailed {
		t.Fatalf("ожидался исход failed, получено: %+v", outcome)
	}

	arch, err := env.archives.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get архива: %v", err)
	}
	if arch.State != model.ArchiveFailed || arch.ErrorMessage == "" {
		t.Errorf("архив после компенсации: %+v", arch)
	}
	if arch.Downloadable() {
		t.Error("неудачный архив не должен быть доступен для скачивания")
	}

	rec, _ := env.files.Get(ctx, "f1")
	if rec.State != model.FileFailed {
		t.Errorf("файл после компенсации: %+v", rec)
	}
}
