// upload.go — приём загруженных файлов и постановка архива в очередь.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/archivarius/internal/domain/model"
	"github.com/bigkaa/archivarius/internal/repository"
	"github.com/bigkaa/archivarius/internal/storage/filestore"
	"github.com/bigkaa/archivarius/internal/workflow"
)

// --- метрики ---

var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_uploads_total",
		Help: "Количество принятых загрузок (batch)",
	})

	uploadedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_uploaded_files_total",
		Help: "Количество принятых файлов",
	})

	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_uploaded_bytes_total",
		Help: "Объём принятых данных в байтах",
	})
)

// UploadService — приём файлов: сохранение байтов на диск, создание
// записей файлов и архива, запуск процесса сжатия.
type UploadService struct {
	files    repository.FileRepository
	archives repository.ArchiveRepository
	store    *filestore.FileStore
	engine   *workflow.Engine
	logger   *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(files repository.FileRepository, archives repository.ArchiveRepository, store *filestore.FileStore, engine *workflow.Engine, logger *slog.Logger) *UploadService {
	return &UploadService{
		files:    files,
		archives: archives,
		store:    store,
		engine:   engine,
		logger:   logger,
	}
}

// UploadPart — один файл из multipart-запроса.
type UploadPart struct {
	// Filename — оригинальное имя файла
	Filename string
	// ContentType — заявленный MIME-тип
	ContentType string
	// Open открывает содержимое части для чтения
	Open func() (io.ReadCloser, error)
}

// PartFromMultipart адаптирует заголовок multipart-части.
func PartFromMultipart(fh *multipart.FileHeader) UploadPart {
	return UploadPart{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// Upload принимает пакет файлов, создаёт архив в состоянии queued
// и запускает процесс сжатия. Возвращает UUID созданного архива.
func (s *UploadService) Upload(ctx context.Context, parts []UploadPart) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("пустой пакет загрузки")
	}

	archiveID := uuid.NewString()
	now := time.Now().UTC()

	fileIDs := make([]string, 0, len(parts))
	for _, part := range parts {
		fileID := uuid.NewString()

		src, err := part.Open()
		if err != nil {
			return "", fmt.Errorf("открытие части %s: %w", part.Filename, err)
		}
		res, err := s.store.SaveUpload(fileID, src)
		src.Close()
		if err != nil {
			return "", fmt.Errorf("сохранение файла %s: %w", part.Filename, err)
		}

		rec := &model.FileRecord{
			ID:          fileID,
			Filename:    part.Filename,
			Size:        res.Size,
			ContentType: part.ContentType,
			Checksum:    res.Checksum,
			State:       model.FileUploading,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.files.Upsert(ctx, rec); err != nil {
			return "", fmt.Errorf("запись файла %s: %w", part.Filename, err)
		}

		fileIDs = append(fileIDs, fileID)
		uploadedFilesTotal.Inc()
		uploadedBytesTotal.Add(float64(res.Size))
	}

	arch := &model.ArchiveRecord{
		ID:        archiveID,
		FileIDs:   fileIDs,
		State:     model.ArchiveQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.archives.Upsert(ctx, arch); err != nil {
		return "", fmt.Errorf("запись архива %s: %w", archiveID, err)
	}

	if _, err := s.engine.Submit(ctx, WorkflowCompressArchive, CompressArgs{
		ArchiveID: archiveID,
		FileIDs:   fileIDs,
	}); err != nil {
		return "", fmt.Errorf("запуск процесса сжатия для архива %s: %w", archiveID, err)
	}

	uploadsTotal.Inc()
	s.logger.Info("Загрузка принята",
		slog.String("archive_id", archiveID),
		slog.Int("file_count", len(fileIDs)))

	return archiveID, nil
}
