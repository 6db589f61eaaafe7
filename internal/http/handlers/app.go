package handlers

import (
	"encoding/json"
	"net/http"

	"mesh3d/internal/compute"
	"mesh3d/internal/infra"
	"mesh3d/internal/jobs"
	"mesh3d/internal/worker"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Jobs   *jobs.Service
	Engine compute.Engine
	Worker *worker.Supervisor
	Logger infra.Logger
}

func NewApp(svc *jobs.Service, engine compute.Engine, sup *worker.Supervisor, logger infra.Logger) *App {
	return &App{Jobs: svc, Engine: engine, Worker: sup, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
