// Пакет model — доменные модели Archivarius.
// FileRecord — запись загруженного файла, ArchiveRecord — запись архива.
// Обе сериализуются как JSON-документы document store (коллекции files, archives).
package model

import (
	"time"
)

// FileState — состояние файла в жизненном цикле архивирования.
type FileState string

const (
	// FileUploading — файл загружен, ожидает оркестратор
	FileUploading FileState = "uploading"
	// FileArchiving — файл включён в архив, идёт сжатие
	FileArchiving FileState = "archiving"
	// FileArchived — файл попал в готовый архив
	FileArchived FileState = "archived"
	// FileDeleting — запись помечена на удаление
	FileDeleting FileState = "deleting"
	// FileDeleted — запись удалена (терминальное состояние)
	FileDeleted FileState = "deleted"
	// FileFailed — архивирование не удалось (терминальное состояние)
	FileFailed FileState = "failed"
)

// fileTransitions — матрица допустимых переходов состояний файла.
// Ключ — текущее состояние, значение — набор допустимых целевых состояний.
// Переход в failed разрешён из любого нетерминального состояния (компенсация),
// самопереход разрешён всегда (at-least-once повтор активности).
var fileTransitions = map[FileState]map[FileState]bool{
	FileUploading: {FileArchiving: true},
	FileArchiving: {FileArchived: true, FileDeleting: true},
	FileArchived:  {FileDeleting: true},
	FileDeleting:  {FileDeleted: true},
	FileDeleted:   {}, // Терминальное состояние
	FileFailed:    {}, // Терминальное состояние, выход только вручную
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (s FileState) CanTransitionTo(target FileState) bool {
	if s == target {
		return true
	}
	if target == FileFailed {
		return s != FileDeleted && s != FileFailed
	}
	transitions, ok := fileTransitions[s]
	if !ok {
		return false
	}
	return transitions[target]
}

// IsTerminal возвращает true для терминальных состояний файла.
func (s FileState) IsTerminal() bool {
	return s == FileDeleted || s == FileFailed
}

// FileRecord — запись загруженного файла.
// Метаданные (filename, size, content_type, checksum) неизменяемы после
// загрузки; state и archive_id мутируются только активностями оркестратора.
type FileRecord struct {
	// ID — уникальный идентификатор файла (UUID v4)
	ID string `json:"id"`

	// Filename — оригинальное имя файла при загрузке
	Filename string `json:"filename"`

	// Size — размер файла в байтах
	Size int64 `json:"size"`

	// ContentType — MIME-тип файла
	ContentType string `json:"content_type"`

	// Checksum — SHA-256 хэш содержимого файла
	Checksum string `json:"checksum,omitempty"`

	// State — текущее состояние жизненного цикла
	State FileState `json:"state"`

	// ArchiveID — идентификатор архива-владельца.
	// Устанавливается оркестратором ровно один раз, никогда не сбрасывается.
	ArchiveID string `json:"archive_id,omitempty"`

	// ErrorMessage — текст ошибки, заполняется только при state=failed
	ErrorMessage string `json:"error_message,omitempty"`

	// CreatedAt — время создания записи (UTC)
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней мутации состояния (UTC)
	UpdatedAt time.Time `json:"updated_at"`
}
