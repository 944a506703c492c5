package apigw

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"edgecache/logger"
)

// ErrInvalidRequest - входящий запрос не удалось разобрать.
var ErrInvalidRequest = errors.New("invalid request")

// ResponseWriter отвечает за формирование HTTP ответов из Response
type ResponseWriter struct{}

// NewResponseWriter создает новый экземпляр writer'а ответов
func NewResponseWriter() *ResponseWriter {
	return &ResponseWriter{}
}

// WriteResponse записывает Response в http.ResponseWriter.
// Возвращает фактически отправленный код состояния.
func (rw *ResponseWriter) WriteResponse(w http.ResponseWriter, req *Request, resp *Response) (int, error) {
	logger.Debug("Writing response: status=%d, bodyLen=%d, cache=%s, hasError=%t",
		resp.StatusCode, len(resp.Body), resp.Cache, resp.Error != nil)

	if req != nil && req.RequestID != "" {
		w.Header().Set("X-Request-Id", req.RequestID)
	}
	if resp.Cache != "" {
		w.Header().Set("X-Cache", string(resp.Cache))
	}

	// Если есть ошибка, формируем текстовый ответ об ошибке
	if resp.Error != nil {
		logger.Debug("Writing error response: %v", resp.Error)
		return rw.writeErrorResponse(w, resp.Error)
	}

	// Копируем заголовки
	for key, values := range resp.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	// Тело известно целиком, поэтому Content-Length всегда точный
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))

	status := resp.StatusCode
	if status == 0 {
		// Непрозрачный ответ без статуса отдаем как есть, с 200
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if len(resp.Body) == 0 || (req != nil && req.Method == http.MethodHead) {
		return status, nil
	}
	_, err := w.Write(resp.Body)
	if err != nil {
		logger.Debug("Error writing response body: %v", err)
	}
	return status, err
}

// writeErrorResponse записывает ответ об ошибке
func (rw *ResponseWriter) writeErrorResponse(w http.ResponseWriter, err error) (int, error) {
	status := rw.mapErrorToStatus(err)
	logger.Debug("Mapped error to status=%d", status)

	body := fmt.Sprintf("%s: %v\n", http.StatusText(status), err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	_, writeErr := w.Write([]byte(body))
	return status, writeErr
}

// mapErrorToStatus сопоставляет Go ошибки с кодами HTTP
func (rw *ResponseWriter) mapErrorToStatus(err error) int {
	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}

	// Любой тип в цепочке, который знает свой HTTP-код
	var coded interface{ HTTPStatusCode() int }
	if errors.As(err, &coded) {
		if code := coded.HTTPStatusCode(); code >= 400 && code <= 599 {
			return code
		}
	}

	// Все остальное - сбой upstream'а
	return http.StatusBadGateway
}
