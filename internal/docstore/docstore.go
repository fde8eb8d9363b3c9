// Пакет docstore — обобщённый document store: CRUD над именованными
// коллекциями JSON-документов с ключом-идентификатором.
// Два бэкенда: PostgreSQL (jsonb) и in-memory (разработка и тесты).
// Междокументных транзакций нет — согласованность между коллекциями
// обеспечивается порядком шагов оркестратора, а не хранилищем.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Имена коллекций Archivarius.
const (
	// CollectionFiles — записи загруженных файлов
	CollectionFiles = "files"
	// CollectionArchives — записи архивов
	CollectionArchives = "archives"
)

// ErrNotFound — документ с указанным идентификатором отсутствует.
var ErrNotFound = errors.New("документ не найден")

// Store — контракт document store.
// Upsert перезаписывает документ целиком (last-write-wins, без
// оптимистичной блокировки). Delete идемпотентен: удаление
// несуществующего документа возвращает (false, nil).
type Store interface {
	// Get возвращает документ по идентификатору или ErrNotFound.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	// Upsert вставляет или полностью перезаписывает документ.
	Upsert(ctx context.Context, collection, id string, doc json.RawMessage) error
	// Delete удаляет документ. Возвращает true, если документ существовал.
	Delete(ctx context.Context, collection, id string) (bool, error)
	// List возвращает страницу документов в порядке создания.
	List(ctx context.Context, collection string, limit, offset int) ([]json.RawMessage, error)
	// Ping проверяет доступность хранилища (readiness probe).
	Ping(ctx context.Context) error
	// Close освобождает ресурсы хранилища.
	Close()
}
