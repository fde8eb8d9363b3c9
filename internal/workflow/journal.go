// journal.go — дисковый журнал запусков процессов.
// Один запуск — один файл {run_id}.run.json. Запись атомарна:
// temp файл → fsync → atomic rename, поэтому журнал не может
// оказаться в полузаписанном состоянии после сбоя.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// runFileSuffix — суффикс журнальных файлов запусков.
const runFileSuffix = ".run.json"

// Journal — дисковый журнал запусков.
type Journal struct {
	// dir — директория журнальных файлов (AR_JOURNAL_DIR)
	dir string
}

// NewJournal создаёт журнал в указанной директории.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию журнала %s: %w", dir, err)
	}
	return &Journal{dir: dir}, nil
}

// Save атомарно записывает состояние запуска на диск.
func (j *Journal) Save(run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация журнала запуска %s: %w", run.RunID, err)
	}

	fullPath := j.runPath(run.RunID)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("создание временного файла журнала: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("запись журнала запуска %s: %w", run.RunID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync журнала запуска %s: %w", run.RunID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("закрытие файла журнала: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("атомарное переименование журнала: %w", err)
	}
	return nil
}

// Load читает состояние запуска с диска.
func (j *Journal) Load(runID string) (*Run, error) {
	data, err := os.ReadFile(j.runPath(runID))
	if err != nil {
		return nil, fmt.Errorf("чтение журнала запуска %s: %w", runID, err)
	}
	run := &Run{}
	if err := json.Unmarshal(data, run); err != nil {
		return nil, fmt.Errorf("десериализация журнала запуска %s: %w", runID, err)
	}
	return run, nil
}

// LoadPending сканирует директорию журнала и возвращает все запуски
// в статусе pending — кандидаты на восстановление после рестарта.
// Полузаписанных файлов не бывает благодаря атомарной записи.
func (j *Journal) LoadPending() ([]*Run, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("сканирование директории журнала: %w", err)
	}

	var pending []*Run
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), runFileSuffix) {
			continue
		}
		runID := strings.TrimSuffix(entry.Name(), runFileSuffix)
		run, err := j.Load(runID)
		if err != nil {
			return nil, err
		}
		if run.Status == StatusPending {
			pending = append(pending, run)
		}
	}
	return pending, nil
}

// Remove удаляет журнальный файл запуска.
// Удаление отсутствующего файла — не ошибка.
func (j *Journal) Remove(runID string) error {
	if err := os.Remove(j.runPath(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("удаление журнала запуска %s: %w", runID, err)
	}
	return nil
}

// runPath возвращает путь журнального файла запуска.
func (j *Journal) runPath(runID string) string {
	return filepath.Join(j.dir, runID+runFileSuffix)
}
