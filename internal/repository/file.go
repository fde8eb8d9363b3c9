// file.go — репозиторий записей файлов (коллекция files).
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/archivarius/internal/docstore"
	"github.com/bigkaa/archivarius/internal/domain/model"
)

// FileRepository — доступ к записям файлов.
type FileRepository interface {
	// Get возвращает запись файла по UUID или ErrNotFound.
	Get(ctx context.Context, id string) (*model.FileRecord, error)
	// Upsert записывает полное состояние записи (last-write-wins).
	Upsert(ctx context.Context, rec *model.FileRecord) error
	// Delete удаляет запись. Удаление несуществующей — не ошибка.
	Delete(ctx context.Context, id string) error
	// List возвращает страницу записей в порядке создания.
	List(ctx context.Context, limit, offset int) ([]*model.FileRecord, error)
}

// fileRepo — реализация FileRepository поверх document store.
type fileRepo struct {
	store docstore.Store
	cache *recordCache[*model.FileRecord]
}

// NewFileRepository создаёт репозиторий файлов.
// cacheSize <= 0 отключает LRU-кэш пути чтения.
func NewFileRepository(store docstore.Store, cacheSize int, cacheTTL time.Duration) FileRepository {
	return &fileRepo{
		store: store,
		cache: newRecordCache[*model.FileRecord](docstore.CollectionFiles, cacheSize, cacheTTL),
	}
}

// Get возвращает запись файла из кэша или document store.
func (r *fileRepo) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	if rec, ok := r.cache.get(id); ok {
		cp := *rec
		return &cp, nil
	}

	doc, err := r.store.Get(ctx, docstore.CollectionFiles, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи файла %s: %w", id, err)
	}

	rec := &model.FileRecord{}
	if err := json.Unmarshal(doc, rec); err != nil {
		return nil, fmt.Errorf("десериализация записи файла %s: %w", id, err)
	}

	r.cache.set(id, rec)
	cp := *rec
	return &cp, nil
}

// Upsert записывает полное состояние записи и инвалидирует кэш.
func (r *fileRepo) Upsert(ctx context.Context, rec *model.FileRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("сериализация записи файла %s: %w", rec.ID, err)
	}

	if err := r.store.Upsert(ctx, docstore.CollectionFiles, rec.ID, doc); err != nil {
		return fmt.Errorf("запись файла %s: %w", rec.ID, err)
	}

	r.cache.invalidate(rec.ID)
	return nil
}

// Delete удаляет запись файла. Идемпотентен.
func (r *fileRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.store.Delete(ctx, docstore.CollectionFiles, id); err != nil {
		return fmt.Errorf("удаление записи файла %s: %w", id, err)
	}
	r.cache.invalidate(id)
	return nil
}

// List возвращает страницу записей файлов.
func (r *fileRepo) List(ctx context.Context, limit, offset int) ([]*model.FileRecord, error) {
	docs, err := r.store.List(ctx, docstore.CollectionFiles, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("листинг записей файлов: %w", err)
	}

	result := make([]*model.FileRecord, 0, len(docs))
	for _, doc := range docs {
		rec := &model.FileRecord{}
		if err := json.Unmarshal(doc, rec); err != nil {
			return nil, fmt.Errorf("десериализация записи файла: %w", err)
		}
		result = append(result, rec)
	}
	return result, nil
}
