// Package httpapi exposes the inventory service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cafestock/internal/metrics"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

const (
	claimsKey       = "auth_claims"
	requestIDHeader = "X-Request-ID"
	actorHeader     = "X-Actor"
	anonymousActor  = "api"
)

// Inventory is the service surface served over HTTP.
type Inventory interface {
	Today() inventory.BusinessDate
	RecomputeUsage(ctx context.Context, date inventory.BusinessDate, mode inventory.WriteMode) (inventory.UsageResult, error)
	RecomputeReorder(ctx context.Context) (inventory.ReorderResult, error)
	ShoppingList(ctx context.Context, includeHidden bool) (inventory.ShoppingList, error)
	RecordAction(ctx context.Context, event inventory.ShoppingActionEvent) error
	SendReorderNotification(ctx context.Context, request inventory.NotificationRequest) (inventory.NotificationResult, error)
	OnHand(ctx context.Context, upc inventory.UPC, onDate inventory.BusinessDate) (inventory.OnHand, error)
	OnHandReport(ctx context.Context) ([]inventory.OnHand, error)
	IngestSales(ctx context.Context, lines []inventory.SaleLine) (inventory.IngestResult, error)
	RecordPurchase(ctx context.Context, event inventory.PurchaseEvent) error
	RecordAdjustment(ctx context.Context, event inventory.AdjustmentEvent) error
	SetManualRow(ctx context.Context, row inventory.ShoppingRow) error
	RemoveManualRow(ctx context.Context, upc inventory.UPC) (bool, error)
}

// Run boots the HTTP façade and blocks until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg Config, service Inventory, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var validator *sessionvalidator.Validator
	if cfg.AuthEnabled() {
		created, err := sessionvalidator.New(sessionvalidator.Config{
			SigningKey: []byte(cfg.SessionSigningKey),
			Issuer:     cfg.SessionIssuer,
			CookieName: cfg.SessionCookieName,
		})
		if err != nil {
			return fmt.Errorf("session validator: %w", err)
		}
		validator = created
	}

	router := NewRouter(cfg, service, logger, validator)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cafestock api listening", zap.String("addr", cfg.ListenAddr), zap.Bool("auth", validator != nil))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires routes and middleware. A nil validator leaves /api unauthenticated.
func NewRouter(cfg Config, service Inventory, logger *zap.Logger, validator *sessionvalidator.Validator) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", actorHeader, requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := &httpHandler{logger: logger, service: service, cfg: cfg, authenticated: validator != nil}
	api := router.Group("/api")
	if validator != nil {
		api.Use(validator.GinMiddleware(claimsKey), requireSession())
	}

	api.POST("/usage/recompute", handler.handleRecomputeUsage)
	api.POST("/reorder/recompute", handler.handleRecomputeReorder)
	api.GET("/shopping-list", handler.handleShoppingList)
	api.POST("/shopping-actions", handler.handleShoppingAction)
	api.POST("/notifications/reorder", handler.handleNotify)
	api.GET("/on-hand", handler.handleOnHandReport)
	api.GET("/on-hand/:upc", handler.handleOnHand)
	api.POST("/sales", handler.handleSales)
	api.POST("/adjustments", handler.handleAdjustment)
	api.POST("/purchases", handler.handlePurchase)
	api.PUT("/manual-rows/:upc", handler.handleSetManualRow)
	api.DELETE("/manual-rows/:upc", handler.handleRemoveManualRow)

	return router
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := strings.TrimSpace(ctx.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Header(requestIDHeader, requestID)
		ctx.Next()
	}
}

// requireSession rejects requests that reach /api without validated claims.
func requireSession() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if getClaims(ctx) == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		ctx.Next()
	}
}

type httpHandler struct {
	logger        *zap.Logger
	service       Inventory
	cfg           Config
	authenticated bool
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

// actor is the session email when sessions are enforced, the X-Actor header otherwise.
func (handler *httpHandler) actor(ctx *gin.Context) string {
	if claims := getClaims(ctx); claims != nil {
		if email := strings.TrimSpace(claims.GetUserEmail()); email != "" {
			return email
		}
		return claims.GetUserID()
	}
	if handler.authenticated {
		return ""
	}
	if header := strings.TrimSpace(ctx.GetHeader(actorHeader)); header != "" {
		return header
	}
	return anonymousActor
}

func (handler *httpHandler) handleRecomputeUsage(ctx *gin.Context) {
	var request usageRequest
	if !bindOptionalJSON(ctx, &request) {
		return
	}
	date := handler.service.Today().AddDays(-1)
	if strings.TrimSpace(request.Date) != "" {
		parsed, err := inventory.ParseBusinessDate(request.Date)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		date = parsed
	}
	mode := inventory.WriteModeReplace
	if strings.TrimSpace(request.Mode) != "" {
		parsed, err := inventory.ParseWriteMode(request.Mode)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		mode = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.RecomputeUsage(requestCtx, date, mode)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newUsagePayload(result))
}

func (handler *httpHandler) handleRecomputeReorder(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.RecomputeReorder(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reorderPayload{
		GeneratedAt:    result.GeneratedAt.UTC().Format(time.RFC3339),
		Flagged:        result.Flagged(),
		Rows:           newShoppingRowPayloads(result.Rows),
		NegativeOnHand: nonNil(result.NegativeOnHand),
		InvalidRows:    nonNil(result.InvalidRows),
	})
}

func (handler *httpHandler) handleShoppingList(ctx *gin.Context) {
	includeHidden := false
	if raw := strings.TrimSpace(ctx.Query("include_hidden")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "include_hidden must be a boolean"))
			return
		}
		includeHidden = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	list, err := handler.service.ShoppingList(requestCtx, includeHidden)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, shoppingListPayload{
		Date:        list.Date.String(),
		Items:       newShoppingRowPayloads(list.Items),
		Hidden:      nonNil(list.Hidden),
		InvalidRows: nonNil(list.InvalidRows),
	})
}

func (handler *httpHandler) handleShoppingAction(ctx *gin.Context) {
	var request actionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	event, err := inventory.NewShoppingActionEvent(request.Date, request.UPC, request.Action, request.Note, handler.actor(ctx), handler.service.Today())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.RecordAction(requestCtx, event); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"date":   event.Date.String(),
		"upc":    event.UPC.String(),
		"action": string(event.Action),
		"actor":  event.Actor,
	})
}

func (handler *httpHandler) handleNotify(ctx *gin.Context) {
	var request notifyRequest
	if !bindOptionalJSON(ctx, &request) {
		return
	}
	force, err := inventory.NewForceLevel(request.ForceLevel)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	recipients := request.Recipients
	if len(recipients) == 0 {
		recipients = handler.cfg.NotifyRecipients
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.SendReorderNotification(requestCtx, inventory.NotificationRequest{
		Actor:      handler.actor(ctx),
		Recipients: recipients,
		Force:      force,
		Cooldown:   handler.cfg.NotifyCooldown,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, notifyPayload{
		BusinessDate: result.BusinessDate.String(),
		OK:           result.Decision.OK,
		Reason:       string(result.Decision.Reason),
		Sent:         result.Sent,
		RequestID:    result.RequestID,
		ItemsHash:    result.ItemsHash,
		Items:        result.Items,
		Recipients:   result.Recipients,
		InvalidRows:  nonNil(result.InvalidRows),
	})
}

func (handler *httpHandler) handleOnHand(ctx *gin.Context) {
	upc, err := inventory.NewUPC(ctx.Param("upc"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var onDate inventory.BusinessDate
	if raw := strings.TrimSpace(ctx.Query("date")); raw != "" {
		onDate, err = inventory.ParseBusinessDate(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reading, err := handler.service.OnHand(requestCtx, upc, onDate)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newOnHandPayload(reading))
}

func (handler *httpHandler) handleOnHandReport(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	readings, err := handler.service.OnHandReport(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]onHandPayload, 0, len(readings))
	for _, reading := range readings {
		payloads = append(payloads, newOnHandPayload(reading))
	}
	ctx.JSON(http.StatusOK, gin.H{"items": payloads})
}

func (handler *httpHandler) handleSales(ctx *gin.Context) {
	var request salesRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	lines := make([]inventory.SaleLine, 0, len(request.Lines))
	for index, line := range request.Lines {
		date, err := inventory.ParseBusinessDate(line.Date)
		if err != nil {
			handler.respondError(ctx, fmt.Errorf("line %d: %w", index+1, err))
			return
		}
		modifiers := make([]inventory.Modifier, 0, len(line.Modifiers))
		for _, modifier := range line.Modifiers {
			modifiers = append(modifiers, inventory.Modifier{Group: modifier.Group, Option: modifier.Option})
		}
		lines = append(lines, inventory.SaleLine{
			Date:      date,
			MenuItem:  line.MenuItem,
			Modifiers: modifiers,
			Quantity:  line.Quantity,
			Source:    line.Source,
		})
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.IngestSales(requestCtx, lines)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"lines_read": result.LinesRead, "rows_written": result.RowsWritten})
}

func (handler *httpHandler) handleAdjustment(ctx *gin.Context) {
	var request adjustmentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	upc, err := inventory.NewUPC(request.UPC)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	event := inventory.AdjustmentEvent{
		UPC:            upc,
		BaseUnitsDelta: request.Delta,
		AdjustmentType: request.Type,
		Reason:         request.Reason,
		Actor:          handler.actor(ctx),
	}
	if strings.TrimSpace(request.Date) != "" {
		event.Date, err = inventory.ParseBusinessDate(request.Date)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.RecordAdjustment(requestCtx, event); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"status": "recorded", "upc": upc.String()})
}

func (handler *httpHandler) handlePurchase(ctx *gin.Context) {
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	upc, err := inventory.NewUPC(request.UPC)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	err = handler.service.RecordPurchase(requestCtx, inventory.PurchaseEvent{
		UPC:            upc,
		QtyPurchased:   request.QtyPurchased,
		BaseUnitsAdded: request.BaseUnitsAdded,
		Vendor:         request.Vendor,
		Actor:          handler.actor(ctx),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"status": "recorded", "upc": upc.String()})
}

func (handler *httpHandler) handleSetManualRow(ctx *gin.Context) {
	upc, err := inventory.NewUPC(ctx.Param("upc"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request manualRowRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	err = handler.service.SetManualRow(requestCtx, inventory.ShoppingRow{
		UPC:             upc,
		ProductName:     request.ProductName,
		BaseUnit:        request.BaseUnit,
		QtyToOrder:      request.QtyToOrder,
		PreferredVendor: request.PreferredVendor,
		DefaultLocation: request.DefaultLocation,
		Note:            request.Note,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "saved", "upc": upc.String()})
}

func (handler *httpHandler) handleRemoveManualRow(ctx *gin.Context) {
	upc, err := inventory.NewUPC(ctx.Param("upc"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	removed, err := handler.service.RemoveManualRow(requestCtx, upc)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if !removed {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "no manual row for "+upc.String()))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "removed", "upc": upc.String()})
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, inventory.ErrRunInProgress):
		return http.StatusConflict, "run_in_progress"
	case isValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, inventory.ErrRateLimited):
		return http.StatusBadGateway, "store_rate_limited"
	case errors.Is(err, inventory.ErrTransientStore):
		return http.StatusBadGateway, "store_unavailable"
	case errors.Is(err, inventory.ErrMissingColumn), errors.Is(err, inventory.ErrUnknownTable), errors.Is(err, inventory.ErrStoreConfig):
		return http.StatusBadGateway, "store_schema"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusBadGateway, "store_error"
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		inventory.ErrInvalidUPC,
		inventory.ErrInvalidBusinessDate,
		inventory.ErrInvalidAction,
		inventory.ErrInvalidWriteMode,
		inventory.ErrInvalidForceLevel,
		inventory.ErrInvalidCooldown,
		inventory.ErrInvalidQuantity,
		inventory.ErrInvalidMenuItem,
		inventory.ErrInvalidRecipients,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// bindOptionalJSON accepts an empty body and rejects malformed JSON.
func bindOptionalJSON(ctx *gin.Context, target any) bool {
	if ctx.Request.ContentLength == 0 {
		return true
	}
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return false
	}
	return true
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
