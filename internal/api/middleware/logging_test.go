package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yaroslav/microdc/internal/logging"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, logs := observedLogger()

	router := gin.New()
	router.Use(RequestLogger(logger))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("Expected 1 completion entry, got %d", len(completed))
	}
	fields := completed[0].ContextMap()
	if fields[logging.FieldUserAgent] != "test-agent" {
		t.Errorf("Expected user agent field, got %v", fields[logging.FieldUserAgent])
	}
	if fields[logging.FieldStatusCode] != int64(http.StatusOK) {
		t.Errorf("Expected status_code 200, got %v", fields[logging.FieldStatusCode])
	}
}

func TestRequestLogger_DatacenterRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, logs := observedLogger()

	router := gin.New()
	router.Use(RequestLogger(logger))
	router.GET("/api/v1/datacenters/:id/workspaces", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/api/v1/workspaces/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/datacenters/dc-42/workspaces", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/ws-1", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()[logging.FieldDatacenterID]; got != "dc-42" {
		t.Errorf("Expected datacenter_id dc-42, got %v", got)
	}
	if _, ok := entries[1].ContextMap()[logging.FieldDatacenterID]; ok {
		t.Error("Expected no datacenter_id on workspace route")
	}
}

func TestRequestLogger_LoggerInContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, logs := observedLogger()

	router := gin.New()
	router.Use(RequestLogger(logger))
	router.GET("/test", func(c *gin.Context) {
		GetLogger(c).Info("from gin context")
		logging.FromContext(c.Request.Context()).Info("from request context")
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	for _, msg := range []string{"from gin context", "from request context"} {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 {
			t.Fatalf("Expected %q to be logged once, got %d", msg, len(entries))
		}
		if entries[0].ContextMap()[logging.FieldRequestID] == "" {
			t.Errorf("Expected %q to carry a request ID", msg)
		}
	}
}

func TestRequestLogger_RequestIDGenerated(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, _ := observedLogger()

	var requestID string

	router := gin.New()
	router.Use(RequestLogger(logger))
	router.GET("/test", func(c *gin.Context) {
		requestID = GetRequestID(c)
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if len(requestID) != 36 { // UUID length
		t.Errorf("Expected UUID format (36 chars), got %d chars", len(requestID))
	}
	if w.Header().Get(HeaderRequestID) != requestID {
		t.Errorf("Expected response header %q, got %q", requestID, w.Header().Get(HeaderRequestID))
	}
}

func TestRequestLogger_RequestIDPropagated(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, _ := observedLogger()

	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{"caller id", "req-abc-123", true},
		{"empty", "", false},
		{"too long", strings.Repeat("x", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestID string
			router := gin.New()
			router.Use(RequestLogger(logger))
			router.GET("/test", func(c *gin.Context) {
				requestID = GetRequestID(c)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			router.ServeHTTP(httptest.NewRecorder(), req)

			if (requestID == tt.header) != tt.wantSame {
				t.Errorf("request ID = %q, header %q, wantSame %v", requestID, tt.header, tt.wantSame)
			}
			if requestID == "" {
				t.Error("Expected a request ID")
			}
		})
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		status  int
		level   zapcore.Level
		message string
	}{
		{"success", http.StatusCreated, zapcore.InfoLevel, "request completed"},
		{"client error", http.StatusBadRequest, zapcore.WarnLevel, "request completed with client error"},
		{"server error", http.StatusBadGateway, zapcore.ErrorLevel, "request completed with server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := observedLogger()

			router := gin.New()
			router.Use(RequestLogger(logger))
			router.GET("/test", func(c *gin.Context) {
				if tt.status >= 500 {
					_ = c.Error(http.ErrBodyReadAfterClose)
				}
				c.Status(tt.status)
			})

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			entries := logs.FilterMessage(tt.message).All()
			if len(entries) != 1 {
				t.Fatalf("Expected 1 %q entry, got %d", tt.message, len(entries))
			}
			if entries[0].Level != tt.level {
				t.Errorf("Expected level %v, got %v", tt.level, entries[0].Level)
			}
			if tt.status >= 500 {
				if _, ok := entries[0].ContextMap()[logging.FieldError]; !ok {
					t.Error("Expected error field on server error")
				}
			}
		})
	}
}

func TestGetLogger_NoLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	logger := GetLogger(c)
	if logger == nil {
		t.Error("Expected no-op logger when none exists")
	}

	// Should not panic
	logger.Info("test message")
}

func TestGetRequestID_NoRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	requestID := GetRequestID(c)
	if requestID != "" {
		t.Errorf("Expected empty request ID, got %s", requestID)
	}
}
