// Package httptransport adapts the RPC Binding Layer's unary operations
// (methods, events.emit, events.subscribe/unsubscribe, context.get) onto
// a gin HTTP router, grounded on the teacher's cmd/main.go gin wiring
// and internal/middleware.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/metrics"
	"github.com/streamspace-dev/pluginrt/internal/middleware"
	"github.com/streamspace-dev/pluginrt/internal/rpc"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
)

// Registry resolves a plugin name to its RPC binder. internal/host
// implements this once plugin instances are registered.
type Registry interface {
	Binder(pluginName string) (*rpc.Binder, bool)
}

// NewRouter builds a gin.Engine exposing the dotted RPC surface as HTTP
// routes under /rpc/plugin/:name/..., carrying the teacher's request-id
// and structured-logging middleware.
func NewRouter(registry Registry) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(gin.Recovery())
	router.Use(middleware.StructuredLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	group := router.Group("/rpc/plugin/:name")
	group.POST("/methods/:method", handleMethod(registry))
	group.POST("/events/emit", handleEmit(registry))
	group.POST("/events/subscribe", handleSubscribe(registry))
	group.POST("/events/unsubscribe", handleUnsubscribe(registry))
	group.GET("/context/get", handleContextGet(registry))

	return router
}

func resolve(c *gin.Context, registry Registry) (*rpc.Binder, bool) {
	name := c.Param("name")
	binder, ok := registry.Binder(name)
	if !ok {
		writeResult(c, rpc.NotFoundResult[any]("plugin."+name))
		return nil, false
	}
	return binder, true
}

func handleMethod(registry Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		binder, ok := resolve(c, registry)
		if !ok {
			return
		}
		var input map[string]any
		if err := bindJSONOptional(c, &input); err != nil {
			writeResult(c, rpc.Fail[map[string]any](rterrors.Wrap(rterrors.Validation, "malformed request body", err)))
			return
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		result := binder.HandleMethod(ctx, c.Param("method"), input)
		writeResult(c, result)
	}
}

func handleEmit(registry Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		binder, ok := resolve(c, registry)
		if !ok {
			return
		}
		var req rpc.EmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeResult(c, rpc.Fail[rpc.EmitResponse](rterrors.Wrap(rterrors.Validation, "malformed emit request", err)))
			return
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		writeResult(c, binder.HandleEmit(ctx, req))
	}
}

func handleSubscribe(registry Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		binder, ok := resolve(c, registry)
		if !ok {
			return
		}
		var req rpc.SubscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeResult(c, rpc.Fail[struct{}](rterrors.Wrap(rterrors.Validation, "malformed subscribe request", err)))
			return
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		writeResult(c, binder.HandleSubscribe(ctx, req))
	}
}

func handleUnsubscribe(registry Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		binder, ok := resolve(c, registry)
		if !ok {
			return
		}
		var req rpc.UnsubscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeResult(c, rpc.Fail[struct{}](rterrors.Wrap(rterrors.Validation, "malformed unsubscribe request", err)))
			return
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		writeResult(c, binder.HandleUnsubscribe(ctx, req))
	}
}

func handleContextGet(registry Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		binder, ok := resolve(c, registry)
		if !ok {
			return
		}
		ctx, cancel := reqCtx(c)
		defer cancel()
		writeResult(c, binder.HandleContextGet(ctx))
	}
}

func bindJSONOptional(c *gin.Context, out *map[string]any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}

// reqCtx bounds one RPC call's execution time; callers must defer the
// returned cancel to release it promptly on the success path.
func reqCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 30*time.Second)
}

func writeResult[T any](c *gin.Context, result rpc.Result[T]) {
	if result.Err != nil {
		status := rterrors.HTTPStatus(result.Err.Code)
		logger.Transport().Debug().Str("code", string(result.Err.Code)).Str("message", result.Err.Message).Msg("rpc call failed")
		c.JSON(status, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
