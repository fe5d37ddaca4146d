package main

import (
	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router) {
	router.HandleFunc("/getLyrics", getLyrics).Methods("GET")
	router.HandleFunc("/remap", remapLyrics).Methods("POST")
	router.HandleFunc("/providers", getProviders).Methods("GET")

	// Cache management endpoints
	router.HandleFunc("/cache", requireAdmin(getCacheDump))
	router.HandleFunc("/cache/backup", requireAdmin(backupCache))
	router.HandleFunc("/cache/backups", requireAdmin(listBackups))
	router.HandleFunc("/cache/restore", requireAdmin(restoreCache))
	router.HandleFunc("/cache/clear", requireAdmin(clearCache))
	router.HandleFunc("/cache/prune", requireAdmin(pruneCache))

	// Health and stats endpoints
	router.HandleFunc("/health", getHealthStatus)
	router.HandleFunc("/stats", requireAdmin(getStats))

	// Circuit breaker endpoints
	router.HandleFunc("/circuit-breaker", requireAdmin(getCircuitBreakerStatus))
	router.HandleFunc("/circuit-breaker/reset", requireAdmin(resetCircuitBreaker))

	router.HandleFunc("/test-notifications", requireAdmin(testNotifications))

	router.HandleFunc("/", helpHandler)
}
