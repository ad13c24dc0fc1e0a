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

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/middlewares"
	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"bitbucket.org/mmagrifoods/millstock_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// statusForError maps domain errors onto HTTP codes. Stock shortfalls and
// state machine violations are conflicts, malformed payloads are bad
// requests, and a diverged ledger is a server fault that must page someone.
func statusForError(err error) int {
	var insufficientStock *models.InsufficientStockError
	var invalidTransition *models.InvalidTransitionError
	var outputExceedsInput *models.OutputExceedsInputError
	var validation *models.ValidationError
	var invalidRecipe *models.InvalidRecipeError
	var ambiguousSource *models.AmbiguousPackingSourceError

	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrBusinessIdRequired):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrLedgerDiverged):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrDBNotInitialized):
		return http.StatusServiceUnavailable
	case errors.As(err, &insufficientStock),
		errors.As(err, &invalidTransition),
		errors.As(err, &outputExceedsInput):
		return http.StatusConflict
	case errors.As(err, &validation),
		errors.As(err, &invalidRecipe),
		errors.As(err, &ambiguousSource):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

// abortWithBindError reports binding failures field by field when the
// validator produced them, so callers see which line was malformed.
func abortWithBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request",
			"fields": utils.ProcessValidationErrors(validationErrors),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

/* master data handlers */

func createItemHandler(c *gin.Context) {
	var input models.NewItem
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	item, err := models.CreateItem(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func updateItemHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var input models.NewItem
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	item, err := models.UpdateItem(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func getItemHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	item, err := models.GetItem(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func listItemsHandler(c *gin.Context) {
	items, err := models.ListItems(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func createSupplierHandler(c *gin.Context) {
	var input models.NewSupplier
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	supplier, err := models.CreateSupplier(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

func listSuppliersHandler(c *gin.Context) {
	suppliers, err := models.ListSuppliers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

func createCustomerHandler(c *gin.Context) {
	var input models.NewCustomer
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	customer, err := models.CreateCustomer(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func listCustomersHandler(c *gin.Context) {
	customers, err := models.ListCustomers(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func createRecipeHandler(c *gin.Context) {
	var input models.NewRecipe
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	recipe, err := models.CreateRecipe(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, recipe)
}

func listRecipesHandler(c *gin.Context) {
	recipes, err := models.ListRecipes(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipes)
}

/* posting handlers */

func postGoodsReceiptHandler(c *gin.Context) {
	var input models.NewGoodsReceipt
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	grn, snapshot, err := workflow.PostGoodsReceipt(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"goods_receipt": grn, "ledger": snapshot})
}

func listGoodsReceiptsHandler(c *gin.Context) {
	grns, err := models.ListGoodsReceipts(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, grns)
}

func createProductionBatchHandler(c *gin.Context) {
	var input models.NewProductionBatch
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	batch, err := workflow.CreateProductionBatch(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func issueProductionBatchHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var input models.IssueBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	batch, snapshot, err := workflow.IssueProductionBatch(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "ledger": snapshot})
}

func completeProductionBatchHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var input models.CompleteBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	batch, snapshot, err := workflow.CompleteProductionBatch(c.Request.Context(), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "ledger": snapshot})
}

func getProductionBatchHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	batch, err := models.GetProductionBatch(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	response := gin.H{"batch": batch}
	if batch.Status == models.BatchStatusPlanned && batch.Recipe != nil {
		// Preview only. Issuing always takes the caller's explicit lines.
		response["planned_issue_lines"] = batch.PlannedIssueLines(batch.Recipe)
	}
	c.JSON(http.StatusOK, response)
}

func listProductionBatchesHandler(c *gin.Context) {
	batches, err := models.ListProductionBatches(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

func createPackingRunHandler(c *gin.Context) {
	var input models.NewPackingRun
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	run, err := workflow.CreatePackingRun(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func completePackingRunHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	run, snapshot, err := workflow.CompletePackingRun(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packing_run": run, "ledger": snapshot})
}

func listPackingRunsHandler(c *gin.Context) {
	runs, err := models.ListPackingRuns(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func postDispatchOrderHandler(c *gin.Context) {
	var input models.NewDispatchOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	order, snapshot, err := workflow.PostDispatchOrder(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispatch_order": order, "ledger": snapshot})
}

func listDispatchOrdersHandler(c *gin.Context) {
	orders, err := models.ListDispatchOrders(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func postAdjustmentHandler(c *gin.Context) {
	var input models.NewStockAdjustment
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	adjustment, snapshot, err := workflow.PostStockAdjustment(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"adjustment": adjustment, "ledger": snapshot})
}

func listAdjustmentsHandler(c *gin.Context) {
	adjustments, err := models.ListStockAdjustments(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, adjustments)
}

/* read-side handlers */

func stockBalancesHandler(c *gin.Context) {
	var itemId *int
	if v := c.Query("item_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item_id"})
			return
		}
		itemId = &id
	}
	summaries, err := models.GetStockSummaries(c.Request.Context(), itemId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func stockBalanceByItemHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("itemId"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	summaries, err := models.GetStockSummaries(c.Request.Context(), &id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func auditTrailHandler(c *gin.Context) {
	var filter models.AuditTrailFilter
	if v := c.Query("item_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item_id"})
			return
		}
		filter.ItemId = &id
	}
	if v := c.Query("kind"); v != "" {
		kind := models.TransactionKind(v)
		filter.Kind = &kind
	}
	if v := c.Query("reference_id"); v != "" {
		filter.ReferenceId = &v
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp, want RFC3339"})
			return
		}
		filter.FromEntryTime = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp, want RFC3339"})
			return
		}
		filter.ToEntryTime = &t
	}
	entries, err := models.GetAuditTrail(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func valuationReportHandler(c *gin.Context) {
	rows, err := models.GetValuationReport(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rows":        rows,
		"total_value": models.TotalStockValue(rows),
	})
}

func valuationExcelHandler(c *gin.Context) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=stock-valuation.xlsx")
	if err := models.WriteValuationExcel(c.Request.Context(), c.Writer); err != nil {
		abortWithError(c, err)
	}
}

func reorderAlertsHandler(c *gin.Context) {
	alerts, err := models.GetReorderAlerts(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func ledgerVerifyHandler(c *gin.Context) {
	divergences, err := workflow.VerifyLedger(c.Request.Context())
	if err != nil && !errors.Is(err, models.ErrLedgerDiverged) {
		abortWithError(c, err)
		return
	}
	if errors.Is(err, models.ErrLedgerDiverged) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":      "diverged",
			"divergences": divergences,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "clean"})
}

func ledgerRebuildHandler(c *gin.Context) {
	snapshot, err := workflow.RebuildStockSummaries(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
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
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()

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
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Business-Id", "X-User-Name")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(gin.Recovery())

	api := r.Group("/api", middlewares.SessionMiddleware())
	{
		api.POST("/items", createItemHandler)
		api.PUT("/items/:id", updateItemHandler)
		api.GET("/items/:id", getItemHandler)
		api.GET("/items", listItemsHandler)
		api.POST("/suppliers", createSupplierHandler)
		api.GET("/suppliers", listSuppliersHandler)
		api.POST("/customers", createCustomerHandler)
		api.GET("/customers", listCustomersHandler)
		api.POST("/recipes", createRecipeHandler)
		api.GET("/recipes", listRecipesHandler)

		api.POST("/grn", postGoodsReceiptHandler)
		api.GET("/grn", listGoodsReceiptsHandler)
		api.POST("/production-batches", createProductionBatchHandler)
		api.GET("/production-batches", listProductionBatchesHandler)
		api.GET("/production-batches/:id", getProductionBatchHandler)
		api.POST("/production-batches/:id/issue", issueProductionBatchHandler)
		api.POST("/production-batches/:id/complete", completeProductionBatchHandler)
		api.POST("/packing-runs", createPackingRunHandler)
		api.GET("/packing-runs", listPackingRunsHandler)
		api.POST("/packing-runs/:id/complete", completePackingRunHandler)
		api.POST("/dispatch-orders", postDispatchOrderHandler)
		api.GET("/dispatch-orders", listDispatchOrdersHandler)
		api.POST("/adjustments", postAdjustmentHandler)
		api.GET("/adjustments", listAdjustmentsHandler)

		api.GET("/stock-balances", stockBalancesHandler)
		api.GET("/stock-balances/:itemId", stockBalanceByItemHandler)
		api.GET("/audit-trail", auditTrailHandler)
		api.GET("/reports/valuation", valuationReportHandler)
		api.GET("/reports/valuation.xlsx", valuationExcelHandler)
		api.GET("/reports/reorder-alerts", reorderAlertsHandler)

		// Ops tooling: replay verification and summary cache rebuild.
		api.POST("/internal/ledger/verify", ledgerVerifyHandler)
		api.POST("/internal/ledger/rebuild", ledgerRebuildHandler)
	}
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (startup probe is TCP based).
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

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations as
	// a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Posting reads the trail it is about to extend; READ COMMITTED keeps
	// replays from blocking on gap locks.
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
