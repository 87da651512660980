package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Account management
	mux.HandleFunc("/api/accounts", s.app.AccountHandler.ListHandler) // GET (list), POST (create)
	mux.HandleFunc("/api/accounts/", s.handleAccountRoutes)           // GET/PATCH/DELETE /{id}

	// API routes - Task history
	mux.HandleFunc("/api/tasks/", s.handleTaskRoutes) // GET /{accountID}

	// API routes - Destination OAuth
	mux.HandleFunc("/api/youtube/auth-url/", s.handleAuthURLRoutes) // GET /{accountID}
	mux.HandleFunc("/api/youtube/oauth2callback", s.app.OAuthHandler.CallbackHandler)

	// API routes - Scheduler
	mux.HandleFunc("/api/scheduler/trigger", s.app.SchedulerHandler.TriggerHandler)
	mux.HandleFunc("/api/scheduler/status", s.app.SchedulerHandler.StatusHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleAccountRoutes routes /api/accounts/{id} requests
func (s *Server) handleAccountRoutes(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.app.AccountHandler.AccountHandler(w, r, id)
}

// handleTaskRoutes routes /api/tasks/{accountID} requests
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if accountID == "" || strings.Contains(accountID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.app.TaskHandler.ListByAccountHandler(w, r, accountID)
}

// handleAuthURLRoutes routes /api/youtube/auth-url/{accountID} requests
func (s *Server) handleAuthURLRoutes(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimPrefix(r.URL.Path, "/api/youtube/auth-url/")
	if accountID == "" || strings.Contains(accountID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.app.OAuthHandler.AuthURLHandler(w, r, accountID)
}
