// Пакет handlers — HTTP-обработчики API.
// Маршруты: загрузка файлов, листинги и карточки файлов и архивов,
// скачивание готовых архивов, health-пробы.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/archivarius/internal/api/errors"
	"github.com/bigkaa/archivarius/internal/docstore"
	"github.com/bigkaa/archivarius/internal/repository"
	"github.com/bigkaa/archivarius/internal/service"
	"github.com/bigkaa/archivarius/internal/storage/filestore"
)

// Параметры пагинации по умолчанию.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// APIHandler — обработчики HTTP API.
type APIHandler struct {
	upload   *service.UploadService
	files    repository.FileRepository
	archives repository.ArchiveRepository
	store    *filestore.FileStore
	docs     docstore.Store
	logger   *slog.Logger
	// maxUploadBytes — предельный размер тела запроса загрузки
	maxUploadBytes int64
}

// NewAPIHandler создаёт набор обработчиков.
func NewAPIHandler(
	upload *service.UploadService,
	files repository.FileRepository,
	archives repository.ArchiveRepository,
	store *filestore.FileStore,
	docs docstore.Store,
	maxUploadBytes int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		upload:         upload,
		files:          files,
		archives:       archives,
		store:          store,
		docs:           docs,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes регистрирует маршруты API.
func (h *APIHandler) Routes(r chi.Router) {
	r.Post("/files", h.uploadFiles)
	r.Get("/files", h.listFiles)
	r.Get("/files/{fileID}", h.getFile)

	r.Get("/archives", h.listArchives)
	r.Get("/archives/{archiveID}", h.getArchive)
	r.Get("/archives/{archiveID}/download", h.downloadArchive)

	r.Get("/health/live", h.healthLive)
	r.Get("/health/ready", h.healthReady)
}

// writeJSON сериализует ответ.
func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Ошибка сериализации ответа", slog.String("error", err.Error()))
	}
}

// parseID валидирует UUID из параметра пути.
func parseID(r *http.Request, param string) (string, *apierrors.APIError) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apierrors.Validation("Некорректный UUID: " + raw)
	}
	return id.String(), nil
}

// parseListParams разбирает limit/offset из query-строки.
func parseListParams(r *http.Request) (limit, offset int, apiErr *apierrors.APIError) {
	limit = defaultListLimit
	offset = 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxListLimit {
			return 0, 0, apierrors.Validation("Параметр limit должен быть числом от 1 до " + strconv.Itoa(maxListLimit))
		}
		limit = v
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, apierrors.Validation("Параметр offset должен быть неотрицательным числом")
		}
		offset = v
	}
	return limit, offset, nil
}
