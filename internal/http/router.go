package httpserver

import (
	"log"
	"net/http"

	"github.com/aaronfeingold/invoice-track/internal/http/handlers"
	"github.com/aaronfeingold/invoice-track/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("/v1/jobs", deps.API.Jobs)
	mux.HandleFunc("/v1/jobs/", deps.API.JobDetail)
	mux.HandleFunc("/v1/batches", deps.API.Batches)
	mux.HandleFunc("/v1/batches/progress", deps.API.BatchProgress)
	mux.HandleFunc("/v1/summary", deps.API.Summary)
	mux.HandleFunc("/v1/notifications/unread", deps.API.Unread)
	mux.HandleFunc("/v1/notifications/mark-as-read", deps.API.MarkRead)
	mux.HandleFunc("/v1/notifications/recent", deps.API.Recent)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
