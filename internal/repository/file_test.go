package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/archivarius/internal/docstore"
	"github.com/bigkaa/archivarius/internal/domain/model"
)

// newTestFileRepo создаёт репозиторий файлов поверх in-memory хранилища.
func newTestFileRepo(t *testing.T, cacheSize int) FileRepository {
	t.Helper()
	return NewFileRepository(docstore.NewMemoryStore(), cacheSize, time.Minute)
}

// testFileRecord возвращает запись файла для тестов.
func testFileRecord(id string) *model.FileRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.FileRecord{
		ID:          id,
		Filename:    "report.pdf",
		Size:        2048,
		ContentType: "application/pdf",
		State:       model.FileUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TestFileRepo_GetNotFound проверяет ErrNotFound для отсутствующей записи.
func TestFileRepo_GetNotFound(t *testing.T) {
	repo := newTestFileRepo(t, 0)

	_, err := repo.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидался ErrNotFound, получено: %v", err)
	}
}

// TestFileRepo_UpsertGet проверяет полный цикл записи и чтения.
func TestFileRepo_UpsertGet(t *testing.T) {
	repo := newTestFileRepo(t, 0)
	ctx := context.Background()

	rec := testFileRecord("f1")
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Filename != rec.Filename || got.Size != rec.Size || got.State != model.FileUploading {
		t.Errorf("запись искажена при roundtrip: %+v", got)
	}

	// Мутация состояния сохраняется
	got.State = model.FileArchiving
	got.ArchiveID = "a1"
	got.UpdatedAt = time.Now().UTC()
	if err := repo.Upsert(ctx, got); err != nil {
		t.Fatalf("Upsert (мутация): %v", err)
	}

	got2, err := repo.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("Get после мутации: %v", err)
	}
	if got2.State != model.FileArchiving || got2.ArchiveID != "a1" {
		t.Errorf("мутация не сохранена: %+v", got2)
	}
}

// TestFileRepo_DeleteIdempotent проверяет идемпотентность удаления.
func TestFileRepo_DeleteIdempotent(t *testing.T) {
	repo := newTestFileRepo(t, 0)
	ctx := context.Background()

	if err := repo.Upsert(ctx, testFileRecord("f1")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := repo.Delete(ctx, "f1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Повторное удаление — не ошибка
	if err := repo.Delete(ctx, "f1"); err != nil {
		t.Fatalf("повторный Delete: %v", err)
	}

	if _, err := repo.Get(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("после удаления ожидался ErrNotFound, получено: %v", err)
	}
}

// TestFileRepo_List проверяет пагинацию листинга.
func TestFileRepo_List(t *testing.T) {
	repo := newTestFileRepo(t, 0)
	ctx := context.Background()

	ids := []string{"f1", "f2", "f3"}
	for _, id := range ids {
		if err := repo.Upsert(ctx, testFileRecord(id)); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	page, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("ожидалось 2 записи, получено %d", len(page))
	}
	if page[0].ID != "f1" || page[1].ID != "f2" {
		t.Errorf("порядок листинга нарушен: %s, %s", page[0].ID, page[1].ID)
	}

	page, err = repo.List(ctx, 50, 2)
	if err != nil {
		t.Fatalf("List (offset): %v", err)
	}
	if len(page) != 1 || page[0].ID != "f3" {
		t.Errorf("offset-страница некорректна: %+v", page)
	}
}

// TestFileRepo_CacheInvalidation проверяет когерентность кэша:
// после Upsert/Delete чтение возвращает актуальное состояние.
func TestFileRepo_CacheInvalidation(t *testing.T) {
	repo := newTestFileRepo(t, 16)
	ctx := context.Background()

	rec := testFileRecord("f1")
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Прогреваем кэш
	if _, err := repo.Get(ctx, "f1"); err != nil {
		t.Fatalf("Get (прогрев): %v", err)
	}

	// Upsert должен инвалидировать кэш
	rec.State = model.FileFailed
	rec.ErrorMessage = "ошибка сжатия"
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert (мутация): %v", err)
	}

	got, err := repo.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("Get после мутации: %v", err)
	}
	if got.State != model.FileFailed || got.ErrorMessage != "ошибка сжатия" {
		t.Errorf("кэш вернул устаревшую запись: %+v", got)
	}

	// Мутация копии из Get не должна влиять на кэш
	got.State = model.FileDeleted
	got2, _ := repo.Get(ctx, "f1")
	if got2.State != model.FileFailed {
		t.Errorf("кэш отдаёт разделяемый указатель: %+v", got2)
	}

	// Delete должен инвалидировать кэш
	if err := repo.Delete(ctx, "f1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("после Delete кэш должен быть инвалидирован, получено: %v", err)
	}
}
