// Пакет workflow — движок долговечных (durable) фоновых процессов.
// Каждый запуск (run) журналируется на диск: результат каждого
// завершённого шага записывается до перехода к следующему, поэтому
// после рестарта процесса выполнение возобновляется с первого
// незавершённого шага, а не с начала.
package workflow

import (
	"encoding/json"
	"time"
)

// Статусы запуска.
const (
	// StatusPending — запуск не достиг терминального состояния,
	// после рестарта он подлежит восстановлению
	StatusPending = "pending"
	// StatusCompleted — функция процесса вернула результат
	StatusCompleted = "completed"
	// StatusFailed — функция процесса вернула ошибку
	StatusFailed = "failed"
)

// StepRecord — журнальная запись одного завершённого шага.
// При повторном выполнении (replay) шаг с совпадающим именем
// не исполняется заново: возвращается сохранённый результат.
type StepRecord struct {
	// Index — позиция шага в последовательности выполнения
	Index int `json:"index"`
	// Name — имя активности
	Name string `json:"name"`
	// Result — сериализованный результат активности
	Result json.RawMessage `json:"result,omitempty"`
	// CompletedAt — время успешного завершения шага
	CompletedAt time.Time `json:"completed_at"`
}

// Run — состояние одного запуска процесса. Сериализуется в
// журнальный файл {run_id}.run.json целиком при каждом изменении.
type Run struct {
	// RunID — UUID запуска, он же имя журнального файла
	RunID string `json:"run_id"`
	// Workflow — имя зарегистрированной функции процесса
	Workflow string `json:"workflow"`
	// Args — сериализованные аргументы запуска
	Args json.RawMessage `json:"args,omitempty"`
	// Status — pending | completed | failed
	Status string `json:"status"`
	// Steps — журнал завершённых шагов в порядке выполнения
	Steps []StepRecord `json:"steps,omitempty"`
	// Result — итоговый результат процесса (для completed)
	Result json.RawMessage `json:"result,omitempty"`
	// ErrorMessage — текст ошибки процесса (для failed)
	ErrorMessage string `json:"error_message,omitempty"`
	// StartedAt — время создания запуска
	StartedAt time.Time `json:"started_at"`
	// UpdatedAt — время последнего изменения журнала
	UpdatedAt time.Time `json:"updated_at"`
}
