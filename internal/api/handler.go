package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"BandWatch/internal/model"
	"BandWatch/internal/store"
)

// GetStatus handles GET /status: a full snapshot of every symbol state.
func (s *Server) GetStatus(c *gin.Context) {
	symbols, at := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"symbols": symbols,
		"time":    at.Format(time.RFC3339),
	})
}

// GetSymbol handles GET /status/:symbol.
func (s *Server) GetSymbol(c *gin.Context) {
	symbol := model.NormalizeSymbol(c.Param("symbol"), s.suffix)

	st, err := s.store.Get(symbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

type addRequest struct {
	Symbol string `json:"symbol"`
}

// AddSymbol handles POST /add. Registration is idempotent: adding a symbol
// that already exists answers ok without touching its state. A symbol added
// after today's capture time gets its band synthesized immediately from the
// historical open-to-capture window instead of waiting for tomorrow.
func (s *Server) AddSymbol(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	symbol := model.NormalizeSymbol(req.Symbol, s.suffix)
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "symbol is required"})
		return
	}

	added := s.store.Register(symbol)

	now := s.now().In(s.sess.Loc)
	if added && !now.Before(s.sess.Capture.On(now)) {
		if err := s.lifecycle.ForceCapture(c.Request.Context(), symbol); err != nil {
			// Registration stands; the scheduler retries the capture.
			s.logger.Warn("late capture failed",
				slog.String("symbol", symbol), slog.String("error", err.Error()))
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "symbol": symbol, "added": added})
}

// ForceCapture handles POST /force_capture/:symbol: manual capture bypassing
// the scheduler's time gate, with the same persistence guarantee.
func (s *Server) ForceCapture(c *gin.Context) {
	symbol := model.NormalizeSymbol(c.Param("symbol"), s.suffix)

	err := s.lifecycle.ForceCapture(c.Request.Context(), symbol)
	switch {
	case err == nil:
		st, _ := s.store.Get(symbol)
		c.JSON(http.StatusOK, gin.H{"ok": true, "symbol": symbol, "state": st})
	case errors.Is(err, store.ErrUnknownSymbol):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"version":   ServiceVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
