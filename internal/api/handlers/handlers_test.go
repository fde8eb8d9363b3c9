package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/archivarius/internal/docstore"
	"github.com/bigkaa/archivarius/internal/domain/model"
	"github.com/bigkaa/archivarius/internal/repository"
	"github.com/bigkaa/archivarius/internal/service"
	"github.com/bigkaa/archivarius/internal/storage/filestore"
	"github.com/bigkaa/archivarius/internal/workflow"
)

// syncBuffer — потокобезопасный буфер для захвата журнала:
// движок процессов пишет в журнал из своих горутин.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testStack — полный стек сервиса поверх in-memory хранилища
// и временных директорий, с реальным движком процессов.
type testStack struct {
	srv      *httptest.Server
	handler  *APIHandler
	files    repository.FileRepository
	archives repository.ArchiveRepository
	store    *filestore.FileStore
	logs     *syncBuffer
}

// newTestStack собирает стек и поднимает httptest-сервер.
func newTestStack(t *testing.T) *testStack {
	t.Helper()

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	docs := docstore.NewMemoryStore()
	files := repository.NewFileRepository(docs, 16, time.Minute)
	archives := repository.NewArchiveRepository(docs, 16, time.Minute)

	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}

	journal, err := workflow.NewJournal(t.TempDir())
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	engine := workflow.NewEngine(journal, logger)
	activities := service.NewActivities(files, archives, store, logger)
	service.NewOrchestrator(activities, logger).Register(engine)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Shutdown(ctx)
	})

	uploadSvc := service.NewUploadService(files, archives, store, engine, logger)
	handler := NewAPIHandler(uploadSvc, files, archives, store, docs, 64<<20, logger)

	router := chi.NewRouter()
	handler.Routes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testStack{srv: srv, handler: handler, files: files, archives: archives, store: store, logs: logs}
}

// uploadFiles отправляет multipart-пакет на POST /files.
func (s *testStack) uploadFiles(t *testing.T, contents map[string]string) *http.Response {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range contents {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("запись части: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("закрытие multipart: %v", err)
	}

	resp, err := http.Post(s.srv.URL+"/files", mw.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("POST /files: %v", err)
	}
	return resp
}

// getJSON выполняет GET и разбирает JSON-ответ.
func (s *testStack) getJSON(t *testing.T, path string, out any) int {
	t.Helper()

	resp, err := http.Get(s.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("декодирование ответа %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// waitArchiveState дожидается терминального состояния архива.
func (s *testStack) waitArchiveState(t *testing.T, archiveID string, want model.ArchiveState) *model.ArchiveRecord {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := s.archives.Get(context.Background(), archiveID)
		if err == nil && rec.State == want {
			return rec
		}
		if err == nil && rec.State.IsTerminal() && rec.State != want {
			t.Fatalf("архив достиг %s вместо %s: %+v", rec.State, want, rec)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("архив %s не достиг состояния %s", archiveID, want)
	return nil
}

// errorBody — разбор тела ошибки API.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	defer resp.Body.Close()

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("декодирование тела ошибки: %v", err)
	}
	return body
}
