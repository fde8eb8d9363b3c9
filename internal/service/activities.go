// Пакет service — бизнес-логика жизненного цикла архивов:
// активности сжатия, оркестратор процесса и сервис загрузки.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	kzip "github.com/klauspost/compress/zip"

	"github.com/bigkaa/archivarius/internal/domain/model"
	"github.com/bigkaa/archivarius/internal/repository"
	"github.com/bigkaa/archivarius/internal/storage/filestore"
)

// ErrInvalidTransition — запрошенный переход состояния запрещён матрицей.
var ErrInvalidTransition = errors.New("недопустимый переход состояния")

// CompressResult — результат активности сжатия.
type CompressResult struct {
	// Size — размер сжатого архива в байтах
	Size int64 `json:"size"`
	// FileCount — количество файлов в архиве
	FileCount int `json:"file_count"`
}

// Activities — активности процесса сжатия. Каждая активность
// идемпотентна: повторное выполнение после сбоя безопасно.
type Activities struct {
	files    repository.FileRepository
	archives repository.ArchiveRepository
	store    *filestore.FileStore
	logger   *slog.Logger
}

// NewActivities создаёт набор активностей.
func NewActivities(files repository.FileRepository, archives repository.ArchiveRepository, store *filestore.FileStore, logger *slog.Logger) *Activities {
	return &Activities{
		files:    files,
		archives: archives,
		store:    store,
		logger:   logger,
	}
}

// SetFileState переводит файлы в новое состояние.
// Отсутствующая запись пропускается: файл мог быть удалён
// предыдущим успешным выполнением той же активности.
func (a *Activities) SetFileState(ctx context.Context, fileIDs []string, state model.FileState, errMsg string) error {
	for _, id := range fileIDs {
		rec, err := a.files.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				a.logger.Warn("Запись файла отсутствует, смена состояния пропущена",
					slog.String("file_id", id),
					slog.String("target_state", string(state)))
				continue
			}
			return err
		}

		if !rec.State.CanTransitionTo(state) {
			return fmt.Errorf("%w: файл %s, %s -> %s", ErrInvalidTransition, id, rec.State, state)
		}

		rec.State = state
		rec.ErrorMessage = errMsg
		rec.UpdatedAt = time.Now().UTC()
		if err := a.files.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// SetArchiveState переводит архив в новое состояние.
func (a *Activities) SetArchiveState(ctx context.Context, archiveID string, state model.ArchiveState, errMsg string) error {
	rec, err := a.archives.Get(ctx, archiveID)
	if err != nil {
		return err
	}

	if !rec.State.CanTransitionTo(state) {
		return fmt.Errorf("%w: архив %s, %s -> %s", ErrInvalidTransition, archiveID, rec.State, state)
	}

	rec.State = state
	rec.ErrorMessage = errMsg
	rec.UpdatedAt = time.Now().UTC()
	return a.archives.Upsert(ctx, rec)
}

// MarkFilesArchiving привязывает файлы к архиву и переводит их
// в состояние archiving. Привязка к другому архиву — ошибка:
// файл не может входить в два архива.
func (a *Activities) MarkFilesArchiving(ctx context.Context, fileIDs []string, archiveID string) error {
	for _, id := range fileIDs {
		rec, err := a.files.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("файл %s: %w", id, err)
		}

		if rec.ArchiveID != "" && rec.ArchiveID != archiveID {
			return fmt.Errorf("файл %s уже привязан к архиву %s", id, rec.ArchiveID)
		}
		if !rec.State.CanTransitionTo(model.FileArchiving) {
			return fmt.Errorf("%w: файл %s, %s -> %s", ErrInvalidTransition, id, rec.State, model.FileArchiving)
		}

		rec.ArchiveID = archiveID
		rec.State = model.FileArchiving
		rec.UpdatedAt = time.Now().UTC()
		if err := a.files.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// CompressFiles читает байты файлов архива с диска, пишет zip
// и сохраняет путь и размер результата в записи архива.
// Повторное выполнение атомарно перезаписывает предыдущий zip.
func (a *Activities) CompressFiles(ctx context.Context, archiveID string) (*CompressResult, error) {
	arch, err := a.archives.Get(ctx, archiveID)
	if err != nil {
		return nil, err
	}

	path, size, err := a.store.SaveArchive(archiveID, func(w io.Writer) error {
		zw := kzip.NewWriter(w)

		// Имена записей в zip — оригинальные имена файлов,
		// коллизии разрешаются префиксом UUID
		seen := make(map[string]bool, len(arch.FileIDs))
		for _, fileID := range arch.FileIDs {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := a.files.Get(ctx, fileID)
			if err != nil {
				return fmt.Errorf("файл %s: %w", fileID, err)
			}

			name := rec.Filename
			if seen[name] {
				name = fileID + "-" + name
			}
			seen[name] = true

			entry, err := zw.CreateHeader(&kzip.FileHeader{
				Name:     name,
				Method:   kzip.Deflate,
				Modified: rec.CreatedAt,
			})
			if err != nil {
				return fmt.Errorf("создание записи zip %s: %w", name, err)
			}

			src, err := a.store.OpenUpload(fileID)
			if err != nil {
				return err
			}
			_, err = io.Copy(entry, src)
			src.Close()
			if err != nil {
				return fmt.Errorf("сжатие файла %s: %w", fileID, err)
			}
		}

		return zw.Close()
	})
	if err != nil {
		return nil, err
	}

	arch.Size = size
	arch.PayloadPath = path
	arch.UpdatedAt = time.Now().UTC()
	if err := a.archives.Upsert(ctx, arch); err != nil {
		return nil, err
	}

	a.logger.Info("Архив сжат",
		slog.String("archive_id", archiveID),
		slog.Int("file_count", len(arch.FileIDs)),
		slog.Int64("size", size))

	return &CompressResult{Size: size, FileCount: len(arch.FileIDs)}, nil
}

// DeleteFiles удаляет исходные байты и записи файлов после
// успешного сжатия. Отсутствующая запись пропускается.
func (a *Activities) DeleteFiles(ctx context.Context, fileIDs []string) error {
	for _, id := range fileIDs {
		rec, err := a.files.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return err
		}

		if !rec.State.CanTransitionTo(model.FileDeleting) {
			return fmt.Errorf("%w: файл %s, %s -> %s", ErrInvalidTransition, id, rec.State, model.FileDeleting)
		}

		rec.State = model.FileDeleting
		rec.UpdatedAt = time.Now().UTC()
		if err := a.files.Upsert(ctx, rec); err != nil {
			return err
		}

		if err := a.store.RemoveUpload(id); err != nil {
			return err
		}

		if err := a.files.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
