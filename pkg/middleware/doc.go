// Package middleware provides authentication and rate limiting for the API.
//
// AuthMiddleware turns an "Authorization: Bearer bos_..." header into an
// auth.Identity on the request context:
//
//	authMW := middleware.NewAuthMiddleware(sessions, false)
//	api.Use(authMW.Handler)
//
// RateLimit limits per user (or per client IP before authentication). Use
// DistributedRateLimiter when several instances share a Redis, otherwise the
// in-memory RateLimiter:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "")
//	api.Use(middleware.RateLimit(limiter))
package middleware
