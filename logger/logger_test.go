package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevels(t *testing.T) {
	// Создаем буфер для захвата вывода
	var buf bytes.Buffer

	// Создаем логгер с уровнем DEBUG и нашим буфером
	logger := NewWithWriter(&buf, DEBUG, FormatJSON)

	// Тестируем все уровни
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()

	// Проверяем, что все сообщения присутствуют
	if !strings.Contains(output, `"level":"DEBUG","msg":"debug message"`) {
		t.Error("DEBUG message not found")
	}
	if !strings.Contains(output, `"level":"INFO","msg":"info message"`) {
		t.Error("INFO message not found")
	}
	if !strings.Contains(output, `"level":"WARN","msg":"warn message"`) {
		t.Error("WARN message not found")
	}
	if !strings.Contains(output, `"level":"ERROR","msg":"error message"`) {
		t.Error("ERROR message not found")
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	// Создаем логгер с уровнем ERROR и нашим буфером
	logger := NewWithWriter(&buf, ERROR, FormatJSON)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()

	// Проверяем, что только ERROR сообщения присутствуют
	if strings.Contains(output, `"level":"DEBUG"`) {
		t.Error("DEBUG message should be filtered out")
	}
	if strings.Contains(output, `"level":"INFO"`) {
		t.Error("INFO message should be filtered out")
	}
	if strings.Contains(output, `"level":"WARN"`) {
		t.Error("WARN message should be filtered out")
	}
	if !strings.Contains(output, "error message") {
		t.Error("ERROR message not found")
	}
}

func TestFormattingArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, INFO, FormatJSON)

	logger.Info("bucket %s evicted %d entries", "dynamic-v1", 5)

	if !strings.Contains(buf.String(), "bucket dynamic-v1 evicted 5 entries") {
		t.Errorf("formatted message not found in %q", buf.String())
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, INFO, FormatText)

	logger.Info("hello %s", "tint")
	logger.Debug("hidden")

	output := buf.String()
	if !strings.Contains(output, "INF") || !strings.Contains(output, "hello tint") {
		t.Errorf("unexpected text output: %q", output)
	}
	if strings.Contains(output, "hidden") {
		t.Error("DEBUG message should be filtered out")
	}
	// Буфер не терминал: ANSI-коды выключены
	if strings.Contains(output, "\033[") {
		t.Errorf("expected no ANSI escapes, got %q", output)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, ERROR, FormatJSON)

	logger.SetLevel(DEBUG)
	if logger.GetLevel() != DEBUG {
		t.Errorf("expected DEBUG, got %v", logger.GetLevel())
	}

	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("DEBUG message should be visible after SetLevel")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{"info", INFO},
		{"INFO", INFO},
		{"warn", WARN},
		{"WARN", WARN},
		{"warning", WARN},
		{"WARNING", WARN},
		{"error", ERROR},
		{"ERROR", ERROR},
		{"invalid", INFO}, // по умолчанию INFO
		{"", INFO},        // по умолчанию INFO
	}

	for _, test := range tests {
		result := ParseLogLevel(test.input)
		if result != test.expected {
			t.Errorf("ParseLogLevel(%q) = %v, expected %v", test.input, result, test.expected)
		}
	}
}

func TestGlobalLogger(t *testing.T) {
	// Сохраняем оригинальный логгер
	originalLogger := global()
	defer func() {
		globalMu.Lock()
		globalLogger = originalLogger
		globalMu.Unlock()
	}()

	var buf bytes.Buffer
	Configure(&buf, WARN, FormatJSON)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	output := buf.String()

	if strings.Contains(output, "debug message") {
		t.Error("DEBUG message should be filtered out")
	}
	if strings.Contains(output, "info message") {
		t.Error("INFO message should be filtered out")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("WARN message not found")
	}
	if !strings.Contains(output, "error message") {
		t.Error("ERROR message not found")
	}
	if GetGlobalLevel() != WARN {
		t.Errorf("expected global level WARN, got %v", GetGlobalLevel())
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %q, expected %q", test.level, result, test.expected)
		}
	}
}
