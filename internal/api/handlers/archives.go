// archives.go — чтение записей архивов и скачивание готовых архивов.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/archivarius/internal/api/errors"
	"github.com/bigkaa/archivarius/internal/domain/model"
	"github.com/bigkaa/archivarius/internal/repository"
)

// archiveResponse — запись архива с производным URL скачивания.
type archiveResponse struct {
	*model.ArchiveRecord
	// DownloadURL присутствует только для готовых архивов
	DownloadURL string `json:"download_url,omitempty"`
}

// toArchiveResponse добавляет download_url для готового архива.
func toArchiveResponse(rec *model.ArchiveRecord) archiveResponse {
	resp := archiveResponse{ArchiveRecord: rec}
	if rec.Downloadable() {
		resp.DownloadURL = "/archives/" + rec.ID + "/download"
	}
	return resp
}

// listArchives — GET /archives: страница записей архивов.
func (h *APIHandler) listArchives(w http.ResponseWriter, r *http.Request) {
	limit, offset, apiErr := parseListParams(r)
	if apiErr != nil {
		apierrors.Write(w, apiErr)
		return
	}

	records, err := h.archives.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка листинга архивов", slog.String("error", err.Error()))
		apierrors.Write(w, apierrors.StoreUnavailable("Хранилище записей недоступно"))
		return
	}

	result := make([]archiveResponse, 0, len(records))
	for _, rec := range records {
		result = append(result, toArchiveResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, result)
}

// getArchive — GET /archives/{archiveID}: запись архива по UUID.
func (h *APIHandler) getArchive(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseID(r, "archiveID")
	if apiErr != nil {
		apierrors.Write(w, apiErr)
		return
	}

	rec, err := h.archives.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.Write(w, apierrors.NotFound("Архив не найден: "+id))
			return
		}
		h.logger.Error("Ошибка чтения записи архива",
			slog.String("archive_id", id),
			slog.String("error", err.Error()))
		apierrors.Write(w, apierrors.StoreUnavailable("Хранилище записей недоступно"))
		return
	}

	h.writeJSON(w, http.StatusOK, toArchiveResponse(rec))
}

// downloadArchive — GET /archives/{archiveID}/download.
// 409 — архив ещё не готов (queued/compressing) или не удался,
// 404 — архив неизвестен либо его данные отсутствуют на диске.
func (h *APIHandler) downloadArchive(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseID(r, "archiveID")
	if apiErr != nil {
		apierrors.Write(w, apiErr)
		return
	}

	rec, err := h.archives.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.Write(w, apierrors.NotFound("Архив не найден: "+id))
			return
		}
		h.logger.Error("Ошибка чтения записи архива",
			slog.String("archive_id", id),
			slog.String("error", err.Error()))
		apierrors.Write(w, apierrors.StoreUnavailable("Хранилище записей недоступно"))
		return
	}

	if rec.State != model.ArchiveIdle {
		apierrors.Write(w, apierrors.ArchiveNotReady(
			fmt.Sprintf("Архив %s не готов к скачиванию: состояние %s", id, rec.State)))
		return
	}

	if rec.PayloadPath == "" {
		apierrors.Write(w, apierrors.NotFound("Данные архива отсутствуют: "+id))
		return
	}

	src, size, err := h.store.OpenArchive(rec.PayloadPath)
	if err != nil {
		h.logger.Error("Сжатый архив отсутствует на диске",
			slog.String("archive_id", id),
			slog.String("path", rec.PayloadPath),
			slog.String("error", err.Error()))
		apierrors.Write(w, apierrors.NotFound("Данные архива отсутствуют: "+id))
		return
	}
	defer src.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "archive-"+id+".zip"))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, src); err != nil {
		// Ответ уже начат, остаётся только залогировать обрыв
		h.logger.Warn("Обрыв скачивания архива",
			slog.String("archive_id", id),
			slog.String("error", err.Error()))
	}
}
