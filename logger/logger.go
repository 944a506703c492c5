package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel представляет уровень логирования
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// slogLevel переводит LogLevel в уровень slog
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel парсит строку в LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO // по умолчанию INFO
	}
}

// Format определяет формат вывода логов
type Format string

const (
	FormatText Format = "text" // цветной вывод через tint
	FormatJSON Format = "json" // slog.JSONHandler
)

// Logger представляет логгер с уровнями поверх slog
type Logger struct {
	level  *slog.LevelVar
	logger *slog.Logger
}

// New создает новый логгер с указанным уровнем, пишущий в stdout
func New(level LogLevel) *Logger {
	return NewWithWriter(os.Stdout, level, FormatText)
}

// NewWithWriter создает логгер с произвольным writer'ом и форматом
func NewWithWriter(w io.Writer, level LogLevel, format Format) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lv,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(w),
		})
	}

	return &Logger{
		level:  lv,
		logger: slog.New(handler),
	}
}

// SetLevel устанавливает уровень логирования
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Set(level.slogLevel())
}

// GetLevel возвращает текущий уровень логирования
func (l *Logger) GetLevel() LogLevel {
	switch l.level.Level() {
	case slog.LevelDebug:
		return DEBUG
	case slog.LevelWarn:
		return WARN
	case slog.LevelError:
		return ERROR
	default:
		return INFO
	}
}

// Slog возвращает нижележащий *slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// logf выводит сообщение с указанным уровнем
func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level.slogLevel()) {
		return
	}
	l.logger.Log(ctx, level.slogLevel(), fmt.Sprintf(format, args...))
}

// Debug выводит отладочное сообщение
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

// Info выводит информационное сообщение
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

// Warn выводит предупреждение
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

// Error выводит сообщение об ошибке
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Глобальный логгер
var (
	globalMu     sync.RWMutex
	globalLogger = New(INFO)
)

// Configure пересоздает глобальный логгер с указанным форматом и уровнем
func Configure(w io.Writer, level LogLevel, format Format) {
	l := NewWithWriter(w, level, format)
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetGlobalLevel устанавливает уровень для глобального логгера
func SetGlobalLevel(level LogLevel) {
	global().SetLevel(level)
}

// GetGlobalLevel возвращает уровень глобального логгера
func GetGlobalLevel() LogLevel {
	return global().GetLevel()
}

// Глобальные функции для удобства
func Debug(format string, args ...interface{}) {
	global().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	global().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	global().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	global().Error(format, args...)
}
