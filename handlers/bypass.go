package handlers

import (
	"fmt"

	"edgecache/apigw"
	"edgecache/fetch"
	"edgecache/logger"
)

// BypassHandler проксирует все запросы в origin, не обращаясь к кэшу.
// Используется в режиме server.bypass_cache.
type BypassHandler struct {
	network fetch.Network
}

// NewBypassHandler создает обработчик без кэширования
func NewBypassHandler(network fetch.Network) *BypassHandler {
	return &BypassHandler{network: network}
}

// Handle реализует интерфейс RequestHandler
func (h *BypassHandler) Handle(req *apigw.Request) *apigw.Response {
	logger.Debug("BypassHandler: %s", req.Identity())

	resp, err := h.network.Fetch(req.Ctx(), req)
	if err != nil {
		return &apigw.Response{Error: fmt.Errorf("bypass %s: %w", req.Identity(), err)}
	}
	resp.Cache = apigw.CacheBypass
	return resp
}

// Ready - обработчик готов сразу после создания
func (h *BypassHandler) Ready() bool {
	return true
}
