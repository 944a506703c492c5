package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Пользовательские ошибки для точной диагностики
var (
	// ErrQuotaExceeded - запись не поместилась в квоту хранилища.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrBucketNotFound - бакет с таким именем не существует.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrInvalidKey - пустой ключ или пустое имя бакета.
	ErrInvalidKey = errors.New("invalid key")
)

// Entry - сохраненный ответ на запрос.
type Entry struct {
	// Key - идентичность запроса (метод + абсолютный URL)
	Key string `json:"key"`

	StatusCode int         `json:"status"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`

	// Opaque - ответ на cross-origin запрос, сохраненный без проверки статуса
	Opaque bool `json:"opaque,omitempty"`

	// CapturedAt - время получения ответа из сети
	CapturedAt time.Time `json:"captured_at"`
}

// Size возвращает приблизительный размер записи в байтах для учета квоты
func (e *Entry) Size() int64 {
	size := int64(len(e.Key) + len(e.Body))
	for k, values := range e.Headers {
		for _, v := range values {
			size += int64(len(k) + len(v))
		}
	}
	return size
}

// Bucket - именованное хранилище ответов.
// Все методы безопасны для конкурентного вызова. Одновременная запись
// одного ключа - last-write-wins.
type Bucket interface {
	// Name возвращает имя бакета
	Name() string

	// Match ищет запись по ключу. found=false без ошибки - промах.
	Match(ctx context.Context, key string) (entry *Entry, found bool, err error)

	// Put сохраняет запись. Перезапись ключа делает его самым новым.
	Put(ctx context.Context, key string, entry *Entry) error

	// Delete удаляет запись. Возвращает false, если ее не было.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys возвращает ключи в порядке вставки, от старых к новым
	Keys(ctx context.Context) ([]string, error)

	// Len возвращает количество записей
	Len(ctx context.Context) (int, error)

	// EvictOldest удаляет до n самых старых записей и возвращает их число
	EvictOldest(ctx context.Context, n int) (int, error)
}

// Storage - набор именованных бакетов одного origin.
type Storage interface {
	// Open открывает бакет, создавая его при необходимости
	Open(ctx context.Context, name string) (Bucket, error)

	// Has проверяет существование бакета
	Has(ctx context.Context, name string) (bool, error)

	// Names возвращает имена бакетов в порядке создания
	Names(ctx context.Context) ([]string, error)

	// Delete удаляет бакет со всеми записями
	Delete(ctx context.Context, name string) (bool, error)

	// Driver возвращает имя драйвера для логов и метрик
	Driver() string

	// Close освобождает ресурсы драйвера
	Close() error
}

// hashKey возвращает короткий стабильный хэш ключа запроса
func hashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}
