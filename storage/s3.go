package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"edgecache/logger"
)

// s3API - часть клиента S3, которая нужна хранилищу
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

const (
	registryDir = ".buckets" // реестр бакетов: <prefix>/.buckets/<seq>-<name>
	entriesDir  = "e"        // записи: <prefix>/<bucket>/e/<hash>
	orderDir    = "o"        // порядок вставки: <prefix>/<bucket>/o/<seq>-<hash>
	seqMetaKey  = "seq"

	deleteBatchSize = 1000 // лимит DeleteObjects
)

// S3Storage хранит бакеты кэша как префиксы внутри одного S3-бакета.
// Порядок вставки задается монотонной последовательностью в ключах маркеров:
// лексикографический листинг S3 возвращает их от старых к новым.
type S3Storage struct {
	client  s3API
	bucket  string
	prefix  string
	metrics *Metrics

	seqMu   sync.Mutex
	lastSeq int64
}

// NewS3Storage создает S3-хранилище с настроенным клиентом
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("S3 storage configured (Endpoint: %s, Bucket: %s, Prefix: %s)", cfg.Endpoint, cfg.Bucket, cfg.Prefix)
	return newS3StorageWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3StorageWithClient(client s3API, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		metrics: getMetrics(),
	}
}

// newS3Client создает и настраивает S3 клиент
func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return client, nil
}

// Driver возвращает имя драйвера
func (s *S3Storage) Driver() string { return DriverS3 }

// Close ничего не делает: у клиента S3 нет соединений, требующих закрытия
func (s *S3Storage) Close() error { return nil }

func (s *S3Storage) key(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

// nextSeq возвращает строго возрастающее значение на основе времени
func (s *S3Storage) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := time.Now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

func formatSeq(seq int64) string {
	return fmt.Sprintf("%020d", seq)
}

func validBucketName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.Contains(name, "/") {
		return fmt.Errorf("%w: bucket name %q", ErrInvalidKey, name)
	}
	return nil
}

// registry возвращает маркеры реестра в порядке создания: имя -> ключ маркера
func (s *S3Storage) registry(ctx context.Context) ([]string, map[string]string, error) {
	keys, err := s.list(ctx, s.key(registryDir)+"/")
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(keys))
	markers := make(map[string]string, len(keys))
	for _, k := range keys {
		base := path.Base(k)
		_, name, ok := strings.Cut(base, "-")
		if !ok {
			continue
		}
		if _, dup := markers[name]; dup {
			continue
		}
		names = append(names, name)
		markers[name] = k
	}
	return names, markers, nil
}

// Open открывает бакет, создавая его при необходимости
func (s *S3Storage) Open(ctx context.Context, name string) (Bucket, error) {
	if err := validBucketName(name); err != nil {
		return nil, err
	}

	_, markers, err := s.registry(ctx)
	if err != nil {
		s.metrics.observe(DriverS3, "open", err)
		return nil, fmt.Errorf("failed to read bucket registry: %w", err)
	}
	if _, ok := markers[name]; !ok {
		marker := s.key(registryDir, formatSeq(s.nextSeq())+"-"+name)
		if err := s.putObject(ctx, marker, nil, nil); err != nil {
			s.metrics.observe(DriverS3, "open", err)
			return nil, fmt.Errorf("failed to register bucket %s: %w", name, err)
		}
		logger.Debug("S3 storage: registered bucket %s", name)
	}
	s.metrics.observe(DriverS3, "open", nil)
	return &s3Bucket{storage: s, name: name}, nil
}

// Has проверяет существование бакета
func (s *S3Storage) Has(ctx context.Context, name string) (bool, error) {
	_, markers, err := s.registry(ctx)
	if err != nil {
		return false, err
	}
	_, ok := markers[name]
	return ok, nil
}

// Names возвращает имена бакетов в порядке создания
func (s *S3Storage) Names(ctx context.Context) ([]string, error) {
	names, _, err := s.registry(ctx)
	return names, err
}

// Delete удаляет бакет со всеми записями. Регистрация снимается до листинга
// объектов: запись, завершившаяся после этого, найдет бакет удаленным и уберет
// свои объекты сама.
func (s *S3Storage) Delete(ctx context.Context, name string) (bool, error) {
	_, markers, err := s.registry(ctx)
	if err != nil {
		return false, err
	}
	marker, ok := markers[name]
	if !ok {
		return false, nil
	}

	if err := s.deleteKeys(ctx, []string{marker}); err != nil {
		s.metrics.observe(DriverS3, "delete_bucket", err)
		return false, fmt.Errorf("failed to unregister bucket %s: %w", name, err)
	}

	objects, err := s.list(ctx, s.key(name)+"/")
	if err == nil {
		err = s.deleteKeys(ctx, objects)
	}
	s.metrics.observe(DriverS3, "delete_bucket", err)
	if err != nil {
		return true, fmt.Errorf("bucket %s unregistered, but its objects were not deleted: %w", name, err)
	}
	return true, nil
}

// list возвращает все ключи под префиксом в лексикографическом порядке
func (s *S3Storage) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error(err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Storage) putObject(ctx context.Context, key string, body []byte, meta map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
		Metadata:      meta,
	})
	return mapS3Error(err)
}

func (s *S3Storage) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return mapS3Error(err)
		}
		if out != nil && len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

// mapS3Error приводит ошибки S3 к ошибкам хранилища
func mapS3Error(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "QuotaExceeded", "EntityTooLarge", "XMinioStorageFull":
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %v", ErrBucketNotFound, err)
		}
	}
	return err
}

// isNotFound распознает 404 для GetObject/HeadObject
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}

// s3Bucket - бакет кэша внутри S3
type s3Bucket struct {
	storage *S3Storage
	name    string
}

func (b *s3Bucket) Name() string { return b.name }

func (b *s3Bucket) entryKey(key string) string {
	return b.storage.key(b.name, entriesDir, strconv.FormatUint(hashKey(key), 16))
}

func (b *s3Bucket) orderKey(seq, hash string) string {
	return b.storage.key(b.name, orderDir, seq+"-"+hash)
}

func (b *s3Bucket) Match(ctx context.Context, key string) (*Entry, bool, error) {
	entry, err := b.get(ctx, b.entryKey(key))
	b.storage.metrics.observe(DriverS3, "match", err)
	if err != nil {
		return nil, false, err
	}
	// Коллизия хэша - промах
	if entry == nil || entry.Key != key {
		return nil, false, nil
	}
	return entry, true, nil
}

func (b *s3Bucket) get(ctx context.Context, objectKey string) (*Entry, error) {
	out, err := b.storage.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.storage.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, mapS3Error(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", objectKey, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode entry %s: %w", objectKey, err)
	}
	return &entry, nil
}

// currentSeq возвращает seq существующей записи или "" если ее нет
func (b *s3Bucket) currentSeq(ctx context.Context, objectKey string) (string, error) {
	out, err := b.storage.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.storage.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", mapS3Error(err)
	}
	return out.Metadata[seqMetaKey], nil
}

func (b *s3Bucket) Put(ctx context.Context, key string, entry *Entry) error {
	err := b.put(ctx, key, entry)
	b.storage.metrics.observe(DriverS3, "put", err)
	return err
}

func (b *s3Bucket) put(ctx context.Context, key string, entry *Entry) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	stored := *entry
	stored.Key = key
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	if err := b.checkRegistered(ctx); err != nil {
		return err
	}

	objectKey := b.entryKey(key)
	hash := path.Base(objectKey)

	oldSeq, err := b.currentSeq(ctx, objectKey)
	if err != nil {
		return err
	}

	seq := formatSeq(b.storage.nextSeq())
	marker := b.orderKey(seq, hash)
	if err := b.storage.putObject(ctx, objectKey, data, map[string]string{seqMetaKey: seq}); err != nil {
		return err
	}
	if err := b.storage.putObject(ctx, marker, nil, nil); err != nil {
		return err
	}

	// Бакет удален во время записи: Delete мог не увидеть новые объекты
	if err := b.checkRegistered(ctx); err != nil {
		if cleanupErr := b.storage.deleteKeys(ctx, []string{objectKey, marker}); cleanupErr != nil {
			logger.Warn("S3 storage: failed to clean up %s in deleted bucket %s: %v", key, b.name, cleanupErr)
		}
		return err
	}

	// Параллельная перезапись того же ключа может оставить лишний маркер:
	// liveMarkers его не учитывает, EvictOldest удаляет
	if oldSeq != "" && oldSeq != seq {
		if err := b.storage.deleteKeys(ctx, []string{b.orderKey(oldSeq, hash)}); err != nil {
			logger.Warn("S3 storage: stale order marker for %s left behind: %v", key, err)
		}
	}
	return nil
}

// checkRegistered возвращает ErrBucketNotFound, если бакет удален из реестра
func (b *s3Bucket) checkRegistered(ctx context.Context) error {
	ok, err := b.storage.Has(ctx, b.name)
	if err != nil {
		return fmt.Errorf("failed to read bucket registry: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, b.name)
	}
	return nil
}

func (b *s3Bucket) Delete(ctx context.Context, key string) (bool, error) {
	objectKey := b.entryKey(key)
	hash := path.Base(objectKey)

	all, err := b.storage.list(ctx, b.storage.key(b.name, orderDir)+"/")
	if err != nil {
		return false, err
	}
	victims := []string{objectKey}
	for _, m := range all {
		if markerHash(m) == hash {
			victims = append(victims, m)
		}
	}
	if len(victims) == 1 {
		return false, nil
	}
	err = b.storage.deleteKeys(ctx, victims)
	b.storage.metrics.observe(DriverS3, "delete", err)
	return err == nil, err
}

func markerHash(marker string) string {
	_, hash, _ := strings.Cut(path.Base(marker), "-")
	return hash
}

// liveMarkers возвращает по одному маркеру на запись (самый новый) от старых
// к новым, а также устаревшие маркеры, оставшиеся после параллельных перезаписей
func (b *s3Bucket) liveMarkers(ctx context.Context) (live, stale []string, err error) {
	all, err := b.storage.list(ctx, b.storage.key(b.name, orderDir)+"/")
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		hash := markerHash(all[i])
		if seen[hash] {
			stale = append(stale, all[i])
			continue
		}
		seen[hash] = true
		live = append(live, all[i])
	}
	slices.Reverse(live)
	return live, stale, nil
}

// Keys читает каждую запись, поэтому стоит O(n) запросов
func (b *s3Bucket) Keys(ctx context.Context) ([]string, error) {
	markers, _, err := b.liveMarkers(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(markers))
	for _, m := range markers {
		entry, err := b.get(ctx, b.storage.key(b.name, entriesDir, markerHash(m)))
		if err != nil {
			return nil, err
		}
		if entry != nil {
			keys = append(keys, entry.Key)
		}
	}
	return keys, nil
}

func (b *s3Bucket) Len(ctx context.Context) (int, error) {
	markers, _, err := b.liveMarkers(ctx)
	if err != nil {
		return 0, err
	}
	return len(markers), nil
}

// EvictOldest заодно удаляет все устаревшие маркеры
func (b *s3Bucket) EvictOldest(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	markers, stale, err := b.liveMarkers(ctx)
	if err != nil {
		return 0, err
	}
	if n > len(markers) {
		n = len(markers)
	}

	victims := make([]string, 0, 2*n+len(stale))
	for _, m := range markers[:n] {
		victims = append(victims, b.storage.key(b.name, entriesDir, markerHash(m)), m)
	}
	victims = append(victims, stale...)
	if err := b.storage.deleteKeys(ctx, victims); err != nil {
		b.storage.metrics.observe(DriverS3, "evict", err)
		return 0, err
	}
	b.storage.metrics.observe(DriverS3, "evict", nil)
	b.storage.metrics.evicted(b.name, n)
	return n, nil
}
