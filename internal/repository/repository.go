// Пакет repository — типизированный слой доступа к записям файлов и архивов
// поверх обобщённого document store. Репозитории транслируют доменные модели
// в JSON-документы и обратно; последняя запись побеждает (last-write-wins),
// оптимистичной блокировки нет.
package repository

import (
	"errors"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
)
