package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/duel/go/internal/config"
	"github.com/mcdev12/duel/go/internal/match/gateway"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Register gateway routes (WebSocket and JSON API)
	services.Gateway.RegisterRoutes(mux)

	// Add health check endpoint
	setupHealthCheck(mux, services)

	// Wrap with CORS
	handler := gateway.CORSMiddleware(cfg.Gateway.AllowedOrigins, mux)

	// No WriteTimeout: WebSocket connections outlive any single write deadline.
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
	History     string `json:"history"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:      "ok",
			Sessions:    len(services.Engine.Sessions()),
			Connections: services.Gateway.GetStats().TotalConnections,
			History:     "disabled",
		}
		status := http.StatusOK

		if services.History != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := services.History.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("history health check failed")
				resp.Status = "degraded"
				resp.History = "unreachable"
				status = http.StatusServiceUnavailable
			} else {
				resp.History = "ok"
			}
		}

		writeHealth(w, status, resp)
	})
}

func writeHealth(w http.ResponseWriter, status int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}
