// Пакет filestore — операции с физическими файлами на диске.
// Две области: uploads/ — байты загруженных файлов до архивирования,
// archives/ — готовые сжатые архивы. Все записи атомарны:
// temp файл → запись → fsync → atomic rename.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Поддиректории хранилища.
const (
	uploadsDir  = "uploads"
	archivesDir = "archives"
)

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	// dataDir — корневая директория хранения (AR_DATA_DIR)
	dataDir string
}

// SaveResult — результат сохранения загруженного файла.
type SaveResult struct {
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт FileStore. Создаёт поддиректории uploads/ и archives/,
// если они не существуют.
func New(dataDir string) (*FileStore, error) {
	for _, sub := range []string{uploadsDir, archivesDir} {
		dir := filepath.Join(dataDir, sub)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
		}
	}
	return &FileStore{dataDir: dataDir}, nil
}

// SaveUpload записывает содержимое загруженного файла на диск
// с подсчётом SHA-256 на лету. Имя файла на диске — его UUID.
func (fs *FileStore) SaveUpload(fileID string, reader io.Reader) (*SaveResult, error) {
	fullPath := fs.uploadPath(fileID)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := finalize(f, tmpPath, fullPath); err != nil {
		return nil, err
	}

	return &SaveResult{
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// OpenUpload открывает содержимое загруженного файла для чтения.
func (fs *FileStore) OpenUpload(fileID string) (io.ReadCloser, error) {
	f, err := os.Open(fs.uploadPath(fileID))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", fileID, err)
	}
	return f, nil
}

// RemoveUpload удаляет байты загруженного файла.
// Удаление отсутствующего файла — не ошибка (идемпотентность).
func (fs *FileStore) RemoveUpload(fileID string) error {
	if err := os.Remove(fs.uploadPath(fileID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", fileID, err)
	}
	return nil
}

// SaveArchive записывает сжатый архив через callback build.
// Повторный вызов для того же archiveID атомарно перезаписывает
// предыдущий результат — повтор активности сжатия безопасен.
// Возвращает итоговый путь и размер архива.
func (fs *FileStore) SaveArchive(archiveID string, build func(w io.Writer) error) (string, int64, error) {
	fullPath := fs.ArchivePath(archiveID)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка создания временного файла архива: %w", err)
	}

	if err := build(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", 0, err
	}

	if err := finalize(f, tmpPath, fullPath); err != nil {
		return "", 0, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка stat архива: %w", err)
	}

	return fullPath, info.Size(), nil
}

// OpenArchive открывает сжатый архив для чтения.
// Возвращает reader и размер архива.
func (fs *FileStore) OpenArchive(path string) (io.ReadCloser, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка stat архива %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка открытия архива %s: %w", path, err)
	}
	return f, info.Size(), nil
}

// ArchivePath возвращает путь сжатого архива на диске.
func (fs *FileStore) ArchivePath(archiveID string) string {
	return filepath.Join(fs.dataDir, archivesDir, fmt.Sprintf("archive-%s.zip", archiveID))
}

// uploadPath возвращает путь байтов загруженного файла.
func (fs *FileStore) uploadPath(fileID string) string {
	return filepath.Join(fs.dataDir, uploadsDir, fileID)
}

// finalize завершает атомарную запись: fsync → close → rename.
func finalize(f *os.File, tmpPath, fullPath string) error {
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}
