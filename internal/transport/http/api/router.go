package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gradebook/internal/capture"
	"gradebook/internal/contextbuilder"
	"gradebook/internal/indicator"
	"gradebook/internal/logger"
	"gradebook/internal/outcome"
	"gradebook/internal/recall"
	"gradebook/internal/store"
)

// Resyncer re-pushes a graded outcome to the memory service on demand.
// Nil when memory sync is disabled.
type Resyncer interface {
	Resync(ctx context.Context, outcomeID string) error
}

// Router wires the API handlers to their backing components.
type Router struct {
	Recorder *capture.Recorder
	Recall   *recall.Engine
	Context  *contextbuilder.Builder
	Store    store.Store
	Resync   Resyncer
}

// Register mounts the /api routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/signals", r.handleRecordSignal)
	group.POST("/signals/candles", r.handleRecordSignalFromCandles)
	group.GET("/context", r.handleContext)

	group.GET("/recall/symbol-history", r.handleSymbolHistory)
	group.GET("/recall/recent", r.handleRecentTrades)
	group.GET("/recall/accuracy", r.handleAccuracy)
	group.GET("/recall/similar", r.handleSimilar)
	group.GET("/recall/what-worked", r.handleWhatWorked)
	group.GET("/recall/memory", r.handleSearchMemory)

	group.POST("/annotations", r.handleAddAnnotation)
	group.GET("/annotations", r.handleListAnnotations)
	group.GET("/outcomes/:id", r.handleGetOutcome)
	group.GET("/outcomes/sync-failed", r.handleListSyncFailed)
	group.POST("/outcomes/:id/resync", r.handleResync)
}

type recordSignalRequest struct {
	SignalID    string  `json:"signal_id"`
	Symbol      string  `json:"symbol"`
	Direction   string  `json:"direction"`
	Confidence  float64 `json:"confidence"`
	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`

	RSI15m         float64 `json:"rsi_15m"`
	RSI1h          float64 `json:"rsi_1h"`
	RSI4h          float64 `json:"rsi_4h"`
	MACDBias       string  `json:"macd_bias"`
	VolatilityRank float64 `json:"volatility_rank"`
	VolumeRatio    float64 `json:"volume_ratio"`
	TrendStrength  float64 `json:"trend_strength"`
	BTCCorrelation float64 `json:"btc_correlation"`
	Condition      string  `json:"market_condition"`
}

func (r *Router) handleRecordSignal(c *gin.Context) {
	if r.Recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal intake not enabled"})
		return
	}
	var req recordSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Errorf("[api] record signal bind failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig := outcome.Signal{
		SignalID:    strings.TrimSpace(req.SignalID),
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Direction:   outcome.Direction(strings.ToUpper(strings.TrimSpace(req.Direction))),
		Confidence:  req.Confidence,
		EntryPrice:  req.EntryPrice,
		StopPrice:   req.StopPrice,
		TargetPrice: req.TargetPrice,
	}
	readings := outcome.IndicatorReadings{
		RSI15m:         req.RSI15m,
		RSI1h:          req.RSI1h,
		RSI4h:          req.RSI4h,
		MACDBias:       outcome.MACDBias(strings.ToLower(strings.TrimSpace(req.MACDBias))),
		VolatilityRank: req.VolatilityRank,
		VolumeRatio:    req.VolumeRatio,
		TrendStrength:  req.TrendStrength,
		BTCCorrelation: req.BTCCorrelation,
		Condition:      outcome.MarketCondition(strings.ToLower(strings.TrimSpace(req.Condition))),
	}
	id, err := r.Recorder.RecordSignal(c.Request.Context(), sig, readings)
	if err != nil {
		var cv *outcome.ContractViolation
		if errors.As(err, &cv) {
			logger.Warnf("[api] record signal rejected ip=%s signal=%s err=%v", c.ClientIP(), sig.SignalID, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] record signal failed ip=%s signal=%s err=%v", c.ClientIP(), sig.SignalID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] signal recorded ip=%s signal=%s symbol=%s outcome=%s", c.ClientIP(), sig.SignalID, sig.Symbol, id)
	c.JSON(http.StatusCreated, gin.H{"outcome_id": id})
}

type candleSignalRequest struct {
	SignalID    string  `json:"signal_id"`
	Symbol      string  `json:"symbol"`
	Direction   string  `json:"direction"`
	Confidence  float64 `json:"confidence"`
	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`

	CandlesM15 []indicator.Candle `json:"candles_15m"`
	CandlesH1  []indicator.Candle `json:"candles_1h"`
	CandlesH4  []indicator.Candle `json:"candles_4h"`
	CandlesBTC []indicator.Candle `json:"candles_btc"`
}

// handleRecordSignalFromCandles is the intake path for callers that only
// have raw OHLCV series; readings are derived here before capture.
func (r *Router) handleRecordSignalFromCandles(c *gin.Context) {
	if r.Recorder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal intake not enabled"})
		return
	}
	var req candleSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	readings, err := indicator.Compute(indicator.Series{
		M15: req.CandlesM15,
		H1:  req.CandlesH1,
		H4:  req.CandlesH4,
		BTC: req.CandlesBTC,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig := outcome.Signal{
		SignalID:    strings.TrimSpace(req.SignalID),
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Direction:   outcome.Direction(strings.ToUpper(strings.TrimSpace(req.Direction))),
		Confidence:  req.Confidence,
		EntryPrice:  req.EntryPrice,
		StopPrice:   req.StopPrice,
		TargetPrice: req.TargetPrice,
	}
	id, err := r.Recorder.RecordSignal(c.Request.Context(), sig, readings)
	if err != nil {
		var cv *outcome.ContractViolation
		if errors.As(err, &cv) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] record signal from candles failed ip=%s signal=%s err=%v", c.ClientIP(), sig.SignalID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"outcome_id": id, "condition": readings.Condition})
}

func (r *Router) handleContext(c *gin.Context) {
	if r.Context == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "context builder not enabled"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	condition := outcome.MarketCondition(strings.ToLower(strings.TrimSpace(c.Query("condition"))))
	digest := r.Context.BuildContext(c.Request.Context(), symbol, condition)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "condition": condition, "context": digest})
}

func (r *Router) handleSymbolHistory(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	c.JSON(http.StatusOK, r.Recall.SymbolHistory(c.Request.Context(), symbol, limit))
}

func (r *Router) handleRecentTrades(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	c.JSON(http.StatusOK, r.Recall.RecentTrades(c.Request.Context(), days))
}

func (r *Router) handleAccuracy(c *gin.Context) {
	confMin, _ := strconv.ParseFloat(c.DefaultQuery("min", "0"), 64)
	confMax, _ := strconv.ParseFloat(c.DefaultQuery("max", "100"), 64)
	c.JSON(http.StatusOK, r.Recall.SignalAccuracy(c.Request.Context(), confMin, confMax))
}

func (r *Router) handleSimilar(c *gin.Context) {
	rsiMin, _ := strconv.ParseFloat(c.DefaultQuery("rsi_min", "0"), 64)
	rsiMax, _ := strconv.ParseFloat(c.DefaultQuery("rsi_max", "100"), 64)
	q := recall.SimilarQuery{
		RSIMin:         rsiMin,
		RSIMax:         rsiMax,
		Trend:          outcome.MarketCondition(strings.ToLower(strings.TrimSpace(c.Query("trend")))),
		VolatilityBand: recall.VolatilityBand(strings.ToLower(strings.TrimSpace(c.Query("volatility")))),
	}
	c.JSON(http.StatusOK, r.Recall.SimilarSetups(c.Request.Context(), q))
}

func (r *Router) handleWhatWorked(c *gin.Context) {
	condition := outcome.MarketCondition(strings.ToLower(strings.TrimSpace(c.Query("condition"))))
	if condition == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "condition is required"})
		return
	}
	c.JSON(http.StatusOK, r.Recall.WhatWorked(c.Request.Context(), condition))
}

func (r *Router) handleSearchMemory(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	c.JSON(http.StatusOK, r.Recall.SearchMemory(c.Request.Context(), query))
}

type annotationRequest struct {
	SignalID string   `json:"signal_id"`
	Text     string   `json:"text"`
	Tags     []string `json:"tags"`
}

func (r *Router) handleAddAnnotation(c *gin.Context) {
	var req annotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.SignalID) == "" || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signal_id and text are required"})
		return
	}
	a := outcome.Annotation{
		SignalID:  strings.TrimSpace(req.SignalID),
		Text:      req.Text,
		Tags:      req.Tags,
		CreatedAt: time.Now(),
	}
	if err := r.Store.AddAnnotation(c.Request.Context(), a); err != nil {
		logger.Errorf("[api] add annotation failed ip=%s signal=%s err=%v", c.ClientIP(), a.SignalID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

func (r *Router) handleListAnnotations(c *gin.Context) {
	signalID := strings.TrimSpace(c.Query("signal_id"))
	if signalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signal_id is required"})
		return
	}
	notes, err := r.Store.ListAnnotations(c.Request.Context(), signalID)
	if err != nil {
		logger.Errorf("[api] list annotations failed ip=%s signal=%s err=%v", c.ClientIP(), signalID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"annotations": notes})
}

func (r *Router) handleGetOutcome(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	o, found, err := r.Store.GetOutcome(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "outcome not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": o, "state": o.State()})
}

func (r *Router) handleListSyncFailed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := r.Store.ListSyncFailed(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[api] list sync-failed failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": rows})
}

func (r *Router) handleResync(c *gin.Context) {
	if r.Resync == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "memory sync not enabled"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if err := r.Resync.Resync(c.Request.Context(), id); err != nil {
		var cv *outcome.ContractViolation
		if errors.As(err, &cv) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.Warnf("[api] resync failed ip=%s outcome=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] resync ok ip=%s outcome=%s", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
