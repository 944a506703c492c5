package apigw

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// RequestKind определяет тип входящего запроса.
type RequestKind int

const (
	// FetchRequest - обычный запрос страницы, проходящий через слой кэширования
	FetchRequest RequestKind = iota
	// MessageRequest - диагностическое сообщение от страницы (out-of-band канал)
	MessageRequest
)

// String возвращает строковое представление типа запроса
func (k RequestKind) String() string {
	switch k {
	case FetchRequest:
		return "FETCH"
	case MessageRequest:
		return "MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// CacheStatus описывает, откуда был взят ответ. Отдается клиенту в X-Cache.
type CacheStatus string

const (
	CacheHit     CacheStatus = "HIT"     // ответ из бакета, без сети
	CacheMiss    CacheStatus = "MISS"    // ответ из сети, сохранен в бакет
	CacheStale   CacheStatus = "STALE"   // ответ из бакета после сбоя сети
	CacheBypass  CacheStatus = "BYPASS"  // ответ из сети, кэш не затрагивался
	CacheOffline CacheStatus = "OFFLINE" // офлайн-заглушка
)

// Request - это стандартизированное внутреннее представление запроса.
// Создается модулем API Gateway из http.Request.
type Request struct {
	// Тип запроса, определенный парсером.
	Kind RequestKind

	// HTTP метод.
	Method string

	// Абсолютный URL запроса (схема и хост публичного origin).
	URL *url.URL

	// Оригинальные заголовки HTTP запроса.
	Headers http.Header

	// Тело запроса. Для GET обычно пустое.
	Body []byte

	// CrossOrigin - запрос к чужому origin. Ответ на такой запрос непрозрачен.
	CrossOrigin bool

	// Идентификатор запроса для логов и X-Request-Id.
	RequestID string

	// Оригинальный контекст запроса для поддержки таймаутов и отмены.
	Context context.Context
}

// Identity возвращает ключ запроса в кэше: метод + абсолютный URL.
func (r *Request) Identity() string {
	return r.Method + " " + r.URL.String()
}

// IsNavigation возвращает true, если клиент ожидает HTML-документ.
func (r *Request) IsNavigation() bool {
	for _, accept := range r.Headers.Values("Accept") {
		if strings.Contains(strings.ToLower(accept), "text/html") {
			return true
		}
	}
	return false
}

// IsHTTP возвращает true для схем http и https.
func (r *Request) IsHTTP() bool {
	return r.URL.Scheme == "http" || r.URL.Scheme == "https"
}

// Cacheable возвращает true, если запрос вообще может участвовать в кэшировании.
// Только GET по http(s).
func (r *Request) Cacheable() bool {
	return r.Method == http.MethodGet && r.IsHTTP()
}

// Ctx возвращает контекст запроса, никогда не nil.
func (r *Request) Ctx() context.Context {
	if r.Context == nil {
		return context.Background()
	}
	return r.Context
}

// Response - это стандартизированное внутреннее представление ответа.
type Response struct {
	// HTTP код состояния для отправки клиенту.
	StatusCode int

	// Заголовки для отправки клиенту.
	Headers http.Header

	// Тело ответа целиком.
	Body []byte

	// Opaque - ответ на cross-origin запрос. Статус не проверяется при кэшировании.
	Opaque bool

	// Источник ответа.
	Cache CacheStatus

	// Ошибка, возникшая при обработке. Если не nil, Body игнорируется.
	Error error
}

// OK возвращает true для статусов 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Clone возвращает копию ответа, не разделяющую заголовки и тело.
func (r *Response) Clone() *Response {
	c := *r
	c.Headers = r.Headers.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// RequestHandler - это интерфейс, который должен реализовывать
// следующий по цепочке модуль (контроллер кэша или bypass).
type RequestHandler interface {
	// Handle принимает распарсенный Request и возвращает Response,
	// готовый для отправки клиенту.
	Handle(req *Request) *Response
}

// MessageHandler принимает диагностические сообщения от страницы.
// Реализуется обработчиком опционально.
type MessageHandler interface {
	HandleMessage(ctx context.Context, payload []byte) error
}

// ReadinessChecker сообщает, готов ли обработчик принимать трафик.
type ReadinessChecker interface {
	Ready() bool
}
