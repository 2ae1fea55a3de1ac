// Package handlers holds reusable HTTP pieces shared by the API server:
// health aggregation and the bearer-token middleware that puts the caller's
// shared.Principal into the request context.
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCritical("postgres", handlers.PingCheck(conn))
//	checker.AddCheck("redis", handlers.PingCheck(cache))
//
//	protected := handlers.BearerAuth(resolver, onError)(mux)
//	principal, ok := handlers.PrincipalFrom(r.Context())
package handlers
