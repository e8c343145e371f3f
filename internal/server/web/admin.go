package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reqlens/reqlens/internal/metrics"
	"github.com/reqlens/reqlens/internal/reconciler"
	"go.uber.org/zap"
)

type ReportProvider interface {
	Report() *reconciler.Report
}

type SnapshotProvider interface {
	Get(maxAge time.Duration, attemptFresh bool, timeout time.Duration) (*metrics.Snapshot, error)
	LastError() error
}

// ReportCache serves the most recent persisted report so hot reads skip the
// reconciler. A nil report with a nil error means nothing is cached yet.
type ReportCache interface {
	GetLatestReport() (*reconciler.Report, error)
}

// MatchedRequestStore serves time ranged queries over persisted requests.
type MatchedRequestStore interface {
	GetMatchedRequests(start int64, end int64) ([]*reconciler.MatchedRequest, error)
}

type ErrorResponse struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

type AdminServer struct {
	server *http.Server
	log    *zap.Logger
	port   string
}

func NewAdminServer(log *zap.Logger, mode string, rp ReportProvider, sp SnapshotProvider, rc ReportCache, store MatchedRequestStore, port string, adminPass string) (*AdminServer, error) {
	router := gin.New()

	prod := mode == "production"
	router.Use(getAdminLoggerMiddleware(log, "admin", prod, adminPass))
	router.Use(getOtelMiddleware())

	router.GET("/api/health", getGetHealthCheckHandler())
	router.GET("/api/reporting/requests", getGetRequestsHandler(rp, log, prod))
	router.GET("/api/reporting/report", getGetReportHandler(rp, rc, log, prod))
	router.GET("/api/reporting/sessions", getGetSessionsHandler(rp, log, prod))
	router.GET("/api/reporting/matched-requests", getGetMatchedRequestsHandler(store, log, prod))
	router.GET("/api/metrics/snapshot", getGetSnapshotHandler(sp, log, prod))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	return &AdminServer{
		server: srv,
		log:    log,
		port:   port,
	}, nil
}

func (as *AdminServer) Run() {
	go func() {
		as.log.Sugar().Infof("admin server listening at %s", as.port)
		as.log.Sugar().Infof("PORT %s | GET   | /api/health is set up for health checking the admin server", as.port)
		as.log.Sugar().Infof("PORT %s | GET   | /api/reporting/requests is set up for retrieving reconciled requests", as.port)
		as.log.Sugar().Infof("PORT %s | GET   | /api/reporting/report is set up for retrieving the full reconciliation report", as.port)
		as.log.Sugar().Infof("PORT %s | GET   | /api/reporting/sessions is set up for retrieving observed sessions", as.port)
		as.log.Sugar().Infof("PORT %s | GET   | /api/reporting/matched-requests is set up for querying persisted requests by time range", as.port)
		as.log.Sugar().Infof("PORT %s | GET   | /api/metrics/snapshot is set up for inspecting the cached counter snapshot", as.port)

		if err := as.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			as.log.Sugar().Fatalf("error admin server listening: %v", err)
		}
	}()
}

func (as *AdminServer) Shutdown(ctx context.Context) error {
	if err := as.server.Shutdown(ctx); err != nil {
		as.log.Sugar().Infof("error shutting down admin server: %v", err)
		return err
	}

	return nil
}

func getGetHealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
	}
}

func getGetRequestsHandler(rp ReportProvider, log *zap.Logger, prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := rp.Report()
		c.JSON(http.StatusOK, report.Requests)
	}
}

func getGetReportHandler(rp ReportProvider, rc ReportCache, log *zap.Logger, prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rc != nil {
			report, err := rc.GetLatestReport()
			if err != nil {
				log.Sugar().Warnf("error reading latest report from cache: %v", err)
			}

			if report != nil {
				c.JSON(http.StatusOK, report)
				return
			}
		}

		c.JSON(http.StatusOK, rp.Report())
	}
}

func getGetMatchedRequestsHandler(store MatchedRequestStore, log *zap.Logger, prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusNotImplemented, &ErrorResponse{
				Type:     "/errors/storage-not-configured",
				Title:    "storage not configured",
				Status:   http.StatusNotImplemented,
				Detail:   "postgresql storage is not enabled",
				Instance: "/api/reporting/matched-requests",
			})
			return
		}

		start, err := strconv.ParseInt(c.Query("start"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, &ErrorResponse{
				Type:     "/errors/invalid-query-param",
				Title:    "start query param is invalid",
				Status:   http.StatusBadRequest,
				Detail:   "start must be a unix timestamp",
				Instance: "/api/reporting/matched-requests",
			})
			return
		}

		end, err := strconv.ParseInt(c.Query("end"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, &ErrorResponse{
				Type:     "/errors/invalid-query-param",
				Title:    "end query param is invalid",
				Status:   http.StatusBadRequest,
				Detail:   "end must be a unix timestamp",
				Instance: "/api/reporting/matched-requests",
			})
			return
		}

		requests, err := store.GetMatchedRequests(start, end)
		if err != nil {
			log.Sugar().Errorf("error querying matched requests: %v", err)
			c.JSON(http.StatusInternalServerError, &ErrorResponse{
				Type:     "/errors/storage-error",
				Title:    "error querying matched requests",
				Status:   http.StatusInternalServerError,
				Detail:   err.Error(),
				Instance: "/api/reporting/matched-requests",
			})
			return
		}

		c.JSON(http.StatusOK, requests)
	}
}

func getGetSessionsHandler(rp ReportProvider, log *zap.Logger, prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := rp.Report()
		c.JSON(http.StatusOK, report.Sessions)
	}
}

func getGetSnapshotHandler(sp SnapshotProvider, log *zap.Logger, prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		// serve whatever is cached; the admin surface must not trigger fetches
		snapshot, err := sp.Get(0, false, 0)
		if err != nil {
			detail := err.Error()
			if lastErr := sp.LastError(); lastErr != nil {
				detail = lastErr.Error()
			}

			c.JSON(http.StatusServiceUnavailable, &ErrorResponse{
				Type:     "/errors/snapshot-unavailable",
				Title:    "snapshot unavailable",
				Status:   http.StatusServiceUnavailable,
				Detail:   detail,
				Instance: "/api/metrics/snapshot",
			})
			return
		}

		c.JSON(http.StatusOK, snapshot)
	}
}
