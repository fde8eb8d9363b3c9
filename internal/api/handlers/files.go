// files.go — загрузка файлов и чтение их записей.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/archivarius/internal/api/errors"
	"github.com/bigkaa/archivarius/internal/api/middleware"
	"github.com/bigkaa/archivarius/internal/domain/model"
	"github.com/bigkaa/archivarius/internal/repository"
	"github.com/bigkaa/archivarius/internal/service"
)

// uploadResponse — ответ на успешную загрузку.
type uploadResponse struct {
	ArchiveID string `json:"archive_id"`
}

// fileResponse — запись файла с производным URL скачивания архива.
type fileResponse struct {
	*model.FileRecord
	// DownloadURL присутствует, когда архив-владелец готов к скачиванию
	DownloadURL string `json:"download_url,omitempty"`
}

// toFileResponse добавляет download_url, если архив-владелец файла готов.
func (h *APIHandler) toFileResponse(ctx context.Context, rec *model.FileRecord) fileResponse {
	resp := fileResponse{FileRecord: rec}
	if rec.ArchiveID == "" {
		return resp
	}

	arch, err := h.archives.Get(ctx, rec.ArchiveID)
	if err != nil {
		// Отсутствие архива не ошибка карточки файла: поле просто опускается
		if !errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("Ошибка чтения архива-владельца файла",
				slog.String("file_id", rec.ID),
				slog.String("archive_id", rec.ArchiveID),
				slog.String("error", err.Error()))
		}
		return resp
	}
	if arch.Downloadable() {
		resp.DownloadURL = "/archives/" + arch.ID + "/download"
	}
	return resp
}

// uploadFiles — POST /files: приём multipart-пакета файлов.
// Пустой пакет — 400. Успех — UUID архива, поставленного в очередь.
func (h *APIHandler) uploadFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		apierrors.Write(w, apierrors.Validation("Некорректный multipart-запрос: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var parts []service.UploadPart
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			parts = append(parts, service.PartFromMultipart(fh))
		}
	}
	if len(parts) == 0 {
		apierrors.Write(w, apierrors.Validation("Пакет загрузки не содержит файлов"))
		return
	}

	archiveID, err := h.upload.Upload(r.Context(), parts)
	if err != nil {
		h.logger.Error("Ошибка приёма загрузки", slog.String("error", err.Error()))
		apierrors.Write(w, apierrors.Internal("Не удалось принять загрузку"))
		return
	}

	logger := h.logger
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		logger = logger.With(
			slog.String("subject", subject),
			slog.String("scopes", strings.Join(middleware.ScopesFromContext(r.Context()), " ")),
		)
	}
	logger.Info("Пакет загрузки принят",
		slog.String("archive_id", archiveID),
		slog.Int("files", len(parts)))

	h.writeJSON(w, http.StatusOK, uploadResponse{ArchiveID: archiveID})
}

// listFiles — GET /files: страница записей файлов.
func (h *APIHandler) listFiles(w http.ResponseWriter, r *http.Request) {
	limit, offset, apiErr := parseListParams(r)
	if apiErr != nil {
		apierrors.Write(w, apiErr)
		return
	}

	records, err := h.files.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка листинга файлов", slog.String("error", err.Error()))
		apierrors.Write(w, apierrors.StoreUnavailable("Хранилище записей недоступно"))
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

// getFile — GET /files/{fileID}: запись файла по UUID.
// Для файла готового архива ответ содержит производный download_url.
func (h *APIHandler) getFile(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseID(r, "fileID")
	if apiErr != nil {
		apierrors.Write(w, apiErr)
		return
	}

	rec, err := h.files.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.Write(w, apierrors.NotFound("Файл не найден: "+id))
			return
		}
		h.logger.Error("Ошибка чтения записи файла",
			slog.String("file_id", id),
			slog.String("error", err.Error()))
		apierrors.Write(w, apierrors.StoreUnavailable("Хранилище записей недоступно"))
		return
	}

	h.writeJSON(w, http.StatusOK, h.toFileResponse(r.Context(), rec))
}
