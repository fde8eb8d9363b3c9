package model

import (
	"time"
)

// ArchiveState — состояние архива в жизненном цикле сжатия.
type ArchiveState string

const (
	// ArchiveQueued — архив создан, ожидает оркестратор
	ArchiveQueued ArchiveState = "queued"
	// ArchiveCompressing — идёт сжатие файлов
	ArchiveCompressing ArchiveState = "compressing"
	// ArchiveIdle — сжатие завершено, архив доступен для скачивания
	ArchiveIdle ArchiveState = "idle"
	// ArchiveFailed — сжатие не удалось (терминальное состояние)
	ArchiveFailed ArchiveState = "failed"
)

// archiveTransitions — матрица допустимых переходов состояний архива.
// Переход в failed разрешён из любого нетерминального состояния,
// самопереход разрешён всегда (at-least-once повтор активности).
var archiveTransitions = map[ArchiveState]map[ArchiveState]bool{
	ArchiveQueued:      {ArchiveCompressing: true},
	ArchiveCompressing: {ArchiveIdle: true},
	ArchiveIdle:        {}, // Терминальное состояние успеха
	ArchiveFailed:      {}, // Терминальное состояние, выход только вручную
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (s ArchiveState) CanTransitionTo(target ArchiveState) bool {
	if s == target {
		return true
	}
	if target == ArchiveFailed {
		return s != ArchiveIdle && s != ArchiveFailed
	}
	transitions, ok := archiveTransitions[s]
	if !ok {
		return false
	}
	return transitions[target]
}

// IsTerminal возвращает true для терминальных состояний архива.
func (s ArchiveState) IsTerminal() bool {
	return s == ArchiveIdle || s == ArchiveFailed
}

// ArchiveRecord — запись архива.
// FileIDs фиксируется при создании и не меняется; Size и PayloadPath
// заполняются только при успешном сжатии.
type ArchiveRecord struct {
	// ID — уникальный идентификатор архива (UUID v4)
	ID string `json:"id"`

	// FileIDs — упорядоченный набор идентификаторов файлов архива.
	// Фиксируется при создании, файлы не добавляются и не удаляются.
	FileIDs []string `json:"file_ids"`

	// State — текущее состояние жизненного цикла
	State ArchiveState `json:"state"`

	// Size — итоговый размер сжатого архива в байтах (только при успехе)
	Size int64 `json:"size,omitempty"`

	// PayloadPath — путь к сжатому архиву на диске (только при успехе).
	// В документе хранится под ключом compressed_payload.
	PayloadPath string `json:"compressed_payload,omitempty"`

	// ErrorMessage — текст ошибки, заполняется только при state=failed
	ErrorMessage string `json:"error_message,omitempty"`

	// CreatedAt — время создания записи (UTC)
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней мутации состояния (UTC)
	UpdatedAt time.Time `json:"updated_at"`
}

// Downloadable возвращает true, когда архив готов к скачиванию.
func (a *ArchiveRecord) Downloadable() bool {
	return a.State == ArchiveIdle && a.PayloadPath != ""
}
