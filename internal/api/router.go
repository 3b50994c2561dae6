package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiContext "beacon/internal/api/context"
	"beacon/internal/api/handlers"
	"beacon/internal/api/middleware"
)

type Dependencies struct {
	SubscriptionHandler *handlers.SubscriptionHandler
	DeliveryHandler     *handlers.DeliveryHandler
	EventHandler        *handlers.EventHandler
	InboundHandler      *handlers.InboundHandler
	APIKeyHandler       *handlers.APIKeyHandler
	HealthHandler       *handlers.HealthHandler
	AuthMiddleware      *middleware.AuthMiddleware
	APIKeyMiddleware    *middleware.APIKeyMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Provider callbacks. Verification is the authentication; no
	// middleware may sit in front of these.
	router.POST("/webhooks/gmail", wrap(deps.InboundHandler.Gmail))
	router.POST("/webhooks/slack", wrap(deps.InboundHandler.Slack))

	authMid := deps.AuthMiddleware
	keyMid := deps.APIKeyMiddleware

	// Subscription management
	router.POST("/api/v1/subscriptions",
		chain(deps.SubscriptionHandler.Create, authMid.Handle))
	router.GET("/api/v1/subscriptions",
		chain(deps.SubscriptionHandler.List, authMid.Handle))
	router.GET("/api/v1/subscriptions/:subscription_id",
		chain(deps.SubscriptionHandler.Get, authMid.Handle))
	router.PATCH("/api/v1/subscriptions/:subscription_id",
		chain(deps.SubscriptionHandler.Update, authMid.Handle))
	router.DELETE("/api/v1/subscriptions/:subscription_id",
		chain(deps.SubscriptionHandler.Delete, authMid.Handle))

	// Delivery history and test deliveries
	router.GET("/api/v1/subscriptions/:subscription_id/deliveries",
		chain(deps.DeliveryHandler.List, authMid.Handle))
	router.POST("/api/v1/subscriptions/:subscription_id/test",
		chain(deps.DeliveryHandler.Test, authMid.Handle))

	// Event vocabulary
	router.GET("/api/v1/event-types",
		chain(deps.SubscriptionHandler.EventTypes, authMid.Handle))

	// Internal producer endpoint
	router.POST("/api/v1/events",
		chain(deps.EventHandler.Publish, keyMid.Handle))

	// Producer API keys
	router.POST("/api/v1/keys",
		chain(deps.APIKeyHandler.Create, authMid.Handle))
	router.GET("/api/v1/keys",
		chain(deps.APIKeyHandler.List, authMid.Handle))
	router.DELETE("/api/v1/keys/:key_id",
		chain(deps.APIKeyHandler.Revoke, authMid.Handle))

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return router
}

// chain applies middlewares right to left around the handler.
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// wrap converts an http.HandlerFunc to an httprouter.Handle, stashing the
// route params in the request context.
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
