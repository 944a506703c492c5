package worker

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"edgecache/logger"
	"edgecache/monitoring"
)

// MessagePerformanceMetrics - тип сообщения с метриками производительности страницы
const MessagePerformanceMetrics = "PERFORMANCE_METRICS"

// HandleMessage принимает сообщение от страницы:
//
//	{"type": "PERFORMANCE_METRICS", "metrics": {"LCP": 1234.5, ...}}
//
// Сообщения не влияют на обработку запросов. Ошибка возвращается
// только для некорректного JSON.
func (c *Controller) HandleMessage(ctx context.Context, payload []byte) error {
	if !gjson.ValidBytes(payload) {
		c.metrics.MessagesTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("malformed message: invalid JSON")
	}

	msgType := gjson.GetBytes(payload, "type")
	if msgType.String() != MessagePerformanceMetrics {
		c.metrics.MessagesTotal.WithLabelValues("other").Inc()
		logger.Debug("Cache controller %s: ignoring message of type %q", c.config.Version, msgType.String())
		return nil
	}
	c.metrics.MessagesTotal.WithLabelValues(MessagePerformanceMetrics).Inc()

	values := gjson.GetBytes(payload, "metrics")
	if !values.IsObject() {
		logger.Debug("Cache controller %s: performance message without metrics object", c.config.Version)
		return nil
	}

	recorded := 0
	values.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number {
			return true
		}
		if monitoring.RecordClientMetric(key.String(), value.Float()) {
			recorded++
			logger.Info("Performance metric from page: %s=%v", key.String(), value.Float())
		} else {
			logger.Debug("Cache controller %s: rejected metric name %q", c.config.Version, key.String())
		}
		return true
	})
	logger.Debug("Cache controller %s: recorded %d performance metrics", c.config.Version, recorded)
	return nil
}
