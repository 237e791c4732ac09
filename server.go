package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kleinballenmafia/ballen_backend/config"
	"github.com/kleinballenmafia/ballen_backend/invoice"
	"github.com/kleinballenmafia/ballen_backend/models"
	"github.com/kleinballenmafia/ballen_backend/utils"
	"github.com/kleinballenmafia/ballen_backend/workflow"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

type adjustInventoryRequest struct {
	BaleType string `json:"baleType" binding:"required"`
	Amount   int    `json:"amount"`
}

func inventoryListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := models.GetInventoryItems(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inventory"})
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func inventoryAdjustHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req adjustInventoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		item, err := models.AdjustInventory(c.Request.Context(), req.BaleType, req.Amount)
		if err != nil {
			if errors.Is(err, models.ErrProductNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			config.LogError(logger, "server.go", "inventoryAdjustHandler", "AdjustInventory", req.BaleType, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update inventory"})
			return
		}

		// Audit append is best-effort: the adjustment already committed.
		action := models.AuditActionInventoryIncrease
		if req.Amount < 0 {
			action = models.AuditActionInventoryDecrease
		}
		if auditErr := models.RecordAuditForInventory(c.Request.Context(), action, item, req.Amount); auditErr != nil {
			config.LogError(logger, "server.go", "inventoryAdjustHandler", "RecordAudit", req.BaleType, auditErr)
		}

		c.JSON(http.StatusOK, item)
	}
}

func invoiceNumberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		number, err := models.AllocateInvoiceNumber(c.Request.Context())
		if err != nil {
			if errors.Is(err, models.ErrCounterMissing) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Counter not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"invoiceNumber": number})
	}
}

func ordersListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := models.GetOrders(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func orderCreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		order, err := models.CreateOrder(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

type orderActionRequest struct {
	ID     int    `json:"id" binding:"required"`
	Action string `json:"action" binding:"required"`
}

func orderActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orderActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		var err error
		switch req.Action {
		case "fulfill":
			err = workflow.FulfillOrder(c.Request.Context(), req.ID)
		case "cancel":
			err = workflow.CancelOrder(c.Request.Context(), req.ID)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
			return
		}
		if err != nil {
			switch {
			case errors.Is(err, models.ErrOrderNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			case errors.Is(err, models.ErrOrderAlreadyClosed):
				c.JSON(http.StatusConflict, gin.H{"error": "Order already completed or cancelled"})
			case errors.Is(err, models.ErrInsufficientStock):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type orderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// orderStatusHandler is the legacy single-order transition variant: the
// order keeps its row and only changes status; completing deducts the
// legacy single-item stock inline.
func orderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}
		var req orderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		status, ok := models.ParseOrderStatus(req.Status)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}

		order, err := models.UpdateOrderStatus(c.Request.Context(), id, status)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrOrderNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			case errors.Is(err, models.ErrOrderAlreadyClosed):
				c.JSON(http.StatusConflict, gin.H{"error": "Order already completed or cancelled"})
			case errors.Is(err, models.ErrInsufficientStock):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Not enough inventory"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
			}
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func orderInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}
		order, err := models.GetOrder(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, models.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		invoiceNumber := ""
		if order.InvoiceNumber != nil {
			invoiceNumber = *order.InvoiceNumber
		}
		invoiceDate := order.OrderDate
		if invoiceDate == "" {
			invoiceDate = order.CreatedAt.Format("02.01.2006")
		}

		pdfBytes, err := invoice.RenderInvoicePDF(invoice.InvoiceData{
			InvoiceNumber:   invoiceNumber,
			InvoiceDate:     invoiceDate,
			Customer:        order.Customer,
			CustomerAddress: order.CustomerAddress,
			Items:           order.ResolveItems(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render invoice"})
			return
		}
		c.Data(http.StatusOK, "application/pdf", pdfBytes)
	}
}

func historyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := models.GetOrderHistory(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func auditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := models.GetAuditEntries(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// customErrorLogger logs only requests that recorded gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(customErrorLogger(logger))
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on DB readiness. Redis is optional.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated). In non-production, allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	r.Use(cors.New(corsConfig))

	r.GET("/inventory", inventoryListHandler())
	r.POST("/inventory", inventoryAdjustHandler())
	r.POST("/invoice-number", invoiceNumberHandler())
	r.GET("/orders", ordersListHandler())
	r.POST("/orders", orderCreateHandler())
	r.PATCH("/orders", orderActionHandler())
	r.PATCH("/orders/:id", orderStatusHandler())
	r.GET("/orders/:id/invoice", orderInvoiceHandler())
	r.GET("/history", historyHandler())
	r.GET("/audit", auditHandler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	defer config.CloseRedis()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
		if err := models.CreateDefaultInventory(db, context.Background()); err != nil {
			config.LogError(logger, "server.go", "main", "CreateDefaultInventory", nil, err)
		}
		if err := models.CreateDefaultInvoiceCounter(db, context.Background()); err != nil {
			config.LogError(logger, "server.go", "main", "CreateDefaultInvoiceCounter", nil, err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("shutdown error: " + err.Error())
	}
}
