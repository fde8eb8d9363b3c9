// archive.go — репозиторий записей архивов (коллекция archives).
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

// ArchiveRepository — доступ к записям архивов.
// Записи архивов этим подсистемой не удаляются, поэтому Delete отсутствует.
type ArchiveRepository interface {
	// Get возвращает запись архива по UUID или ErrNotFound.
	Get(ctx context.Context, id string) (*model.ArchiveRecord, error)
	// Upsert записывает полное состояние записи (last-write-wins).
	Upsert(ctx context.Context, rec *model.ArchiveRecord) error
	// List возвращает страницу записей в порядке создания.
	List(ctx context.Context, limit, offset int) ([]*model.ArchiveRecord, error)
}

// archiveRepo — реализация ArchiveRepository поверх document store.
type archiveRepo struct {
	store docstore.Store
	cache *recordCache[*model.ArchiveRecord]
}

// NewArchiveRepository создаёт репозиторий архивов.
// cacheSize <= 0 отключает LRU-кэш пути чтения.
func NewArchiveRepository(store docstore.Store, cacheSize int, cacheTTL time.Duration) ArchiveRepository {
	return &archiveRepo{
		store: store,
		cache: newRecordCache[*model.ArchiveRecord](docstore.CollectionArchives, cacheSize, cacheTTL),
	}
}

// Get возвращает запись архива из кэша или document store.
func (r *archiveRepo) Get(ctx context.Context, id string) (*model.ArchiveRecord, error) {
	if rec, ok := r.cache.get(id); ok {
		return copyArchive(rec), nil
	}

	doc, err := r.store.Get(ctx, docstore.CollectionArchives, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи архива %s: %w", id, err)
	}

	rec := &model.ArchiveRecord{}
	if err := json.Unmarshal(doc, rec); err != nil {
		return nil, fmt.Errorf("десериализация записи архива %s: %w", id, err)
	}

	r.cache.set(id, rec)
	return copyArchive(rec), nil
}

// Upsert записывает полное состояние записи и инвалидирует кэш.
func (r *archiveRepo) Upsert(ctx context.Context, rec *model.ArchiveRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("сериализация записи архива %s: %w", rec.ID, err)
	}

	if err := r.store.Upsert(ctx, docstore.CollectionArchives, rec.ID, doc); err != nil {
		return fmt.Errorf("запись архива %s: %w", rec.ID, err)
	}

	r.cache.invalidate(rec.ID)
	return nil
}

// List возвращает страницу записей архивов.
func (r *archiveRepo) List(ctx context.Context, limit, offset int) ([]*model.ArchiveRecord, error) {
	docs, err := r.store.List(ctx, docstore.CollectionArchives, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("листинг записей архивов: %w", err)
	}

	result := make([]*model.ArchiveRecord, 0, len(docs))
	for _, doc := range docs {
		rec := &model.ArchiveRecord{}
		if err := json.Unmarshal(doc, rec); err != nil {
			return nil, fmt.Errorf("десериализация записи архива: %w", err)
		}
		result = append(result, rec)
	}
	return result, nil
}

// copyArchive возвращает глубокую копию записи, чтобы вызывающий
// не мутировал закэшированное значение.
func copyArchive(rec *model.ArchiveRecord) *model.ArchiveRecord {
	cp := *rec
	cp.FileIDs = make([]string, len(rec.FileIDs))
	copy(cp.FileIDs, rec.FileIDs)
	return &cp
}
