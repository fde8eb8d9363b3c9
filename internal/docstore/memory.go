// memory.go — in-memory реализация Store.
// Используется при AR_STORE_BACKEND=memory (разработка) и в тестах.
// Порядок List — порядок вставки документов в коллекцию.
package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// memoryDoc — документ с порядковым номером вставки.
type memoryDoc struct {
	doc json.RawMessage
	seq uint64
}

// MemoryStore — потокобезопасное in-memory хранилище документов.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryDoc
	nextSeq     uint64
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]memoryDoc),
	}
}

// Get возвращает документ по идентификатору или ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	entry, ok := coll[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Копия, чтобы вызывающий не мутировал хранимый документ
	out := make(json.RawMessage, len(entry.doc))
	copy(out, entry.doc)
	return out, nil
}

// Upsert вставляет или перезаписывает документ.
// При перезаписи порядковый номер вставки сохраняется.
func (s *MemoryStore) Upsert(_ context.Context, collection, id string, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]memoryDoc)
		s.collections[collection] = coll
	}

	stored := make(json.RawMessage, len(doc))
	copy(stored, doc)

	seq := s.nextSeq
	if existing, ok := coll[id]; ok {
		seq = existing.seq
	} else {
		s.nextSeq++
	}
	coll[id] = memoryDoc{doc: stored, seq: seq}
	return nil
}

// Delete удаляет документ. Удаление несуществующего — не ошибка.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return false, nil
	}
	if _, ok := coll[id]; !ok {
		return false, nil
	}
	delete(coll, id)
	return true, nil
}

// List возвращает страницу документов в порядке вставки.
func (s *MemoryStore) List(_ context.Context, collection string, limit, offset int) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.collections[collection]
	entries := make([]memoryDoc, 0, len(coll))
	for _, entry := range coll {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	result := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		out := make(json.RawMessage, len(entry.doc))
		copy(out, entry.doc)
		result = append(result, out)
	}
	return result, nil
}

// Ping всегда успешен для in-memory хранилища.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close — no-op для in-memory хранилища.
func (s *MemoryStore) Close() {}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ Store = (*MemoryStore)(nil)
