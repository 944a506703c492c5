package storage

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// MemoryStorage хранит бакеты в памяти процесса.
// Квота (MaxBytes) общая на все бакеты, как квота origin'а в браузере.
type MemoryStorage struct {
	mu       sync.Mutex
	maxBytes int64
	used     int64
	buckets  map[string]*memoryBucket
	order    []string
	metrics  *Metrics
}

// NewMemoryStorage создает хранилище в памяти. maxBytes <= 0 - без квоты.
func NewMemoryStorage(maxBytes int64) *MemoryStorage {
	return &MemoryStorage{
		maxBytes: maxBytes,
		buckets:  make(map[string]*memoryBucket),
		metrics:  getMetrics(),
	}
}

// Driver возвращает имя драйвера
func (s *MemoryStorage) Driver() string { return DriverMemory }

// Open открывает бакет, создавая его при необходимости
func (s *MemoryStorage) Open(ctx context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty bucket name", ErrInvalidKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}
	b := &memoryBucket{
		storage: s,
		name:    name,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	s.buckets[name] = b
	s.order = append(s.order, name)
	s.metrics.observe(DriverMemory, "open", nil)
	return b, nil
}

// Has проверяет существование бакета
func (s *MemoryStorage) Has(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[name]
	return ok, nil
}

// Names возвращает имена бакетов в порядке создания
func (s *MemoryStorage) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

// Delete удаляет бакет со всеми записями
func (s *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[name]
	if !ok {
		return false, nil
	}
	// Открытые дескрипторы бакета становятся пустыми и только для чтения
	s.used -= b.bytes
	b.dropped = true
	b.entries = make(map[string]*list.Element)
	b.order.Init()
	b.bytes = 0
	delete(s.buckets, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.metrics.observe(DriverMemory, "delete_bucket", nil)
	return true, nil
}

// UsedBytes возвращает занятый объем
func (s *MemoryStorage) UsedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Close ничего не делает для хранилища в памяти
func (s *MemoryStorage) Close() error { return nil }

type memoryItem struct {
	key   string
	entry *Entry
	size  int64
}

// memoryBucket - бакет в памяти. Порядок вставки хранится в list.List.
// Все поля защищены мьютексом хранилища: квота общая.
type memoryBucket struct {
	storage *MemoryStorage
	name    string
	entries map[string]*list.Element
	order   *list.List
	bytes   int64
	dropped bool
}

func (b *memoryBucket) Name() string { return b.name }

func (b *memoryBucket) Match(ctx context.Context, key string) (*Entry, bool, error) {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	el, ok := b.entries[key]
	if !ok || b.dropped {
		return nil, false, nil
	}
	return cloneEntry(el.Value.(*memoryItem).entry), true, nil
}

func (b *memoryBucket) Put(ctx context.Context, key string, entry *Entry) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	stored := cloneEntry(entry)
	stored.Key = key
	size := stored.Size()

	s := b.storage
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.dropped {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, b.name)
	}

	var prevSize int64
	if el, ok := b.entries[key]; ok {
		prevSize = el.Value.(*memoryItem).size
	}
	if s.maxBytes > 0 && s.used-prevSize+size > s.maxBytes {
		err := fmt.Errorf("%w: need %d bytes, %d of %d used", ErrQuotaExceeded, size, s.used, s.maxBytes)
		s.metrics.observe(DriverMemory, "put", err)
		return err
	}

	if el, ok := b.entries[key]; ok {
		b.order.Remove(el)
		b.bytes -= prevSize
		s.used -= prevSize
	}
	b.entries[key] = b.order.PushBack(&memoryItem{key: key, entry: stored, size: size})
	b.bytes += size
	s.used += size
	s.metrics.observe(DriverMemory, "put", nil)
	return nil
}

func (b *memoryBucket) Delete(ctx context.Context, key string) (bool, error) {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()
	return b.deleteLocked(key), nil
}

func (b *memoryBucket) deleteLocked(key string) bool {
	el, ok := b.entries[key]
	if !ok {
		return false
	}
	item := el.Value.(*memoryItem)
	b.order.Remove(el)
	delete(b.entries, key)
	b.bytes -= item.size
	b.storage.used -= item.size
	return true
}

func (b *memoryBucket) Keys(ctx context.Context) ([]string, error) {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	keys := make([]string, 0, b.order.Len())
	for el := b.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*memoryItem).key)
	}
	return keys, nil
}

func (b *memoryBucket) Len(ctx context.Context) (int, error) {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()
	return b.order.Len(), nil
}

func (b *memoryBucket) EvictOldest(ctx context.Context, n int) (int, error) {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	evicted := 0
	for evicted < n {
		el := b.order.Front()
		if el == nil {
			break
		}
		b.deleteLocked(el.Value.(*memoryItem).key)
		evicted++
	}
	b.storage.metrics.evicted(b.name, evicted)
	return evicted, nil
}

func cloneEntry(e *Entry) *Entry {
	c := *e
	c.Headers = e.Headers.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return &c
}
