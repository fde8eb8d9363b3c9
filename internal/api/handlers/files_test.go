package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/archivarius/internal/api/errors"
	"github.com/bigkaa/archivarius/internal/api/middleware"
	"github.com/bigkaa/archivarius/internal/domain/model"
)

// TestUploadFiles проверяет приём пакета: 200, UUID архива,
// записи файлов в состоянии uploading до завершения сжатия.
func TestUploadFiles(t *testing.T) {
	s := newTestStack(t)

	resp := s.uploadFiles(t, map[string]string{
		"report.pdf": "данные отчёта",
		"photo.jpg":  "данные фотографии",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("статус: ожидался 200, получен %d", resp.StatusCode)
	}

	var body struct {
		ArchiveID string `json:"archive_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if body.ArchiveID == "" {
		t.Fatal("ответ должен содержать archive_id")
	}

	// Архив существует и ссылается на оба файла
	var arch model.ArchiveRecord
	if code := s.getJSON(t, "/archives/"+body.ArchiveID, &arch); code != http.StatusOK {
		t.Fatalf("GET /archives/{id}: статус %d", code)
	}
	if len(arch.FileIDs) != 2 {
		t.Errorf("ожидалось 2 файла в архиве, получено %d", len(arch.FileIDs))
	}
}

// TestUploadFiles_Empty проверяет 400 для пакета без файлов
// и отсутствие побочных записей.
func TestUploadFiles_Empty(t *testing.T) {
	s := newTestStack(t)

	resp := s.uploadFiles(t, map[string]string{})
	body := decodeError(t, resp)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("статус: ожидался 400, получен %d", resp.StatusCode)
	}
	if body.Error.Code != errors.CodeValidation {
		t.Errorf("код ошибки: %s", body.Error.Code)
	}

	// Побочных записей быть не должно
	var archives []json.RawMessage
	if code := s.getJSON(t, "/archives", &archives); code != http.StatusOK {
		t.Fatalf("GET /archives: статус %d", code)
	}
	if len(archives) != 0 {
		t.Errorf("пустой пакет не должен создавать архивы: %d", len(archives))
	}
}

// TestUploadFiles_NotMultipart проверяет 400 для немультипартного тела.
func TestUploadFiles_NotMultipart(t *testing.T) {
	s := newTestStack(t)

	resp, err := http.Post(s.srv.URL+"/files", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /files: %v", err)
	}
	body := decodeError(t, resp)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("статус: ожидался 400, получен %d", resp.StatusCode)
	}
	if body.Error.Code != errors.CodeValidation {
		t.Errorf("код ошибки: %s", body.Error.Code)
	}
}

// TestGetFile проверяет карточку файла, 400 и 404.
func TestGetFile(t *testing.T) {
	s := newTestStack(t)

	resp := s.uploadFiles(t, map[string]string{"a.txt": "x"})
	var upload struct {
		ArchiveID string `json:"archive_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&upload); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	resp.Body.Close()

	var arch model.ArchiveRecord
	s.getJSON(t, "/archives/"+upload.ArchiveID, &arch)
	if len(arch.FileIDs) != 1 {
		t.Fatalf("архив: %+v", arch)
	}

	// Карточка файла доступна, пока процесс его не удалил
	var file model.FileRecord
	code := s.getJSON(t, "/files/"+arch.FileIDs[0], &file)
	// Процесс сжатия мог уже удалить запись — допустимы 200 и 404
	if code == http.StatusOK && file.Filename != "a.txt" {
		t.Errorf("карточка файла: %+v", file)
	}
	if code != http.StatusOK && code != http.StatusNotFound {
		t.Errorf("GET /files/{id}: статус %d", code)
	}

	// Некорректный UUID — 400
	if code := s.getJSON(t, "/files/not-a-uuid", nil); code != http.StatusBadRequest {
		t.Errorf("некорректный UUID: статус %d", code)
	}

	// Неизвестный UUID — 404
	if code := s.getJSON(t, "/files/00000000-0000-0000-0000-000000000001", nil); code != http.StatusNotFound {
		t.Errorf("неизвестный UUID: статус %d", code)
	}
}

// TestGetFile_DownloadURL проверяет производный download_url
// в карточке файла: присутствует только для файлов готового архива.
func TestGetFile_DownloadURL(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Файл готового архива — download_url присутствует
	readyArch := "00000000-0000-0000-0000-0000000000a1"
	readyFile := "00000000-0000-0000-0000-0000000000f1"
	if err := s.archives.Upsert(ctx, &model.ArchiveRecord{
		ID:          readyArch,
		FileIDs:     []string{readyFile},
		State:       model.ArchiveIdle,
		PayloadPath: s.store.ArchivePath(readyArch),
		Size:        64,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("Upsert архива: %v", err)
	}
	if err := s.files.Upsert(ctx, &model.FileRecord{
		ID:        readyFile,
		Filename:  "report.txt",
		Size:      1,
		State:     model.FileArchived,
		ArchiveID: readyArch,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Upsert файла: %v", err)
	}

	var file struct {
		model.FileRecord
		DownloadURL string `json:"download_url"`
	}
	if code := s.getJSON(t, "/files/"+readyFile, &file); code != http.StatusOK {
		t.Fatalf("GET /files/{id}: статус %d", code)
	}
	wantURL := "/archives/" + readyArch + "/download"
	if file.DownloadURL != wantURL {
		t.Errorf("download_url: ожидалось %s, получено %q", wantURL, file.DownloadURL)
	}

	// Файл архива, сжатие которого ещё идёт — поле опускается
	busyArch := "00000000-0000-0000-0000-0000000000a2"
	busyFile := "00000000-0000-0000-0000-0000000000f2"
	if err := s.archives.Upsert(ctx, &model.ArchiveRecord{
		ID:        busyArch,
		FileIDs:   []string{busyFile},
		State:     model.ArchiveCompressing,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Upsert архива: %v", err)
	}
	if err := s.files.Upsert(ctx, &model.FileRecord{
		ID:        busyFile,
		Filename:  "draft.txt",
		Size:      1,
		State:     model.FileArchiving,
		ArchiveID: busyArch,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Upsert файла: %v", err)
	}

	file.DownloadURL = ""
	if code := s.getJSON(t, "/files/"+busyFile, &file); code != http.StatusOK {
		t.Fatalf("GET /files/{id}: статус %d", code)
	}
	if file.DownloadURL != "" {
		t.Errorf("download_url для незавершённого архива: %q", file.DownloadURL)
	}
}

// TestUploadFiles_LogsSubject проверяет, что субъект и scope'ы токена
// попадают в журнал приёма загрузки.
func TestUploadFiles_LogsSubject(t *testing.T) {
	s := newTestStack(t)

	// Роутер с подстановкой субъекта в контекст, как это делает JWT middleware
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.ContextKeySubject, "uploader-1")
			ctx = context.WithValue(ctx, middleware.ContextKeyScopes, []string{"files:write"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	s.handler.Routes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("files", "a.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("x")); err != nil {
		t.Fatalf("запись части: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("закрытие multipart: %v", err)
	}

	resp, err := http.Post(srv.URL+"/files", mw.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("POST /files: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("статус: ожидался 200, получен %d", resp.StatusCode)
	}

	logs := s.logs.String()
	if !strings.Contains(logs, "subject=uploader-1") || !strings.Contains(logs, "scopes=files:write") {
		t.Errorf("журнал приёма не содержит субъекта: %s", logs)
	}
}

// TestListFiles_InvalidParams проверяет валидацию пагинации.
func TestListFiles_InvalidParams(t *testing.T) {
	s := newTestStack(t)

	tests := []string{
		"/files?limit=0",
		"/files?limit=abc",
		"/files?limit=100000",
		"/files?offset=-1",
	}
	for _, path := range tests {
		if code := s.getJSON(t, path, nil); code != http.StatusBadRequest {
			t.Errorf("%s: ожидался 400, получен %d", path, code)
		}
	}
}

// TestHealth проверяет health-пробы.
func TestHealth(t *testing.T) {
	s := newTestStack(t)

	if code := s.getJSON(t, "/health/live", nil); code != http.StatusOK {
		t.Errorf("/health/live: статус %d", code)
	}
	if code := s.getJSON(t, "/health/ready", nil); code != http.StatusOK {
		t.Errorf("/health/ready: статус %d", code)
	}
}
