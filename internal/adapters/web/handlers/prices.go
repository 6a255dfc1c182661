package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

// PriceReader serves recorded quotes
type PriceReader interface {
	GetLatestPrices(ctx context.Context, fiatCurrency string, side models.Side) ([]models.MarketPriceSnapshot, error)
	GetActiveMarkets(ctx context.Context) ([]models.P2PMarketConfig, error)
}

// PricesHandler handles price-related requests
type PricesHandler struct {
	reader PriceReader
	logger *slog.Logger
}

// NewPricesHandler creates a new prices handler
func NewPricesHandler(reader PriceReader, logger *slog.Logger) *PricesHandler {
	return &PricesHandler{
		reader: reader,
		logger: logger,
	}
}

// Latest serves GET /prices/{fiat}/{side}
func (h *PricesHandler) Latest(w http.ResponseWriter, r *http.Request) {
	fiat := strings.ToUpper(r.PathValue("fiat"))
	side := models.Side(strings.ToLower(r.PathValue("side")))

	if len(fiat) != 3 {
		writeError(w, http.StatusBadRequest, "fiat must be a 3-letter currency code")
		return
	}
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	prices, err := h.reader.GetLatestPrices(r.Context(), fiat, side)
	if err != nil {
		h.logger.Error("Failed to get latest prices", "fiat", fiat, "side", side, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(prices) == 0 {
		writeError(w, http.StatusNotFound, "no prices recorded")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fiat_currency": fiat,
		"side":          side,
		"captured_at":   prices[0].Timestamp,
		"prices":        prices,
	})
}

// Markets serves GET /markets
func (h *PricesHandler) Markets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.reader.GetActiveMarkets(r.Context())
	if err != nil {
		h.logger.Error("Failed to list markets", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if markets == nil {
		markets = []models.P2PMarketConfig{}
	}
	writeJSON(w, http.StatusOK, markets)
}
