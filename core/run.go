// Copyright 2025 VentureScope
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"venturescope/platform/session"
	"venturescope/platform/shared/config"
	"venturescope/platform/shared/types"
)

// Run starts the VentureScope runtime service: it loads configuration,
// wires the runtime, exposes the HTTP surface, and blocks until SIGINT
// or SIGTERM triggers a graceful shutdown.
//
// Environment variables:
//   - CONFIG_PATH: YAML configuration file (optional)
//   - PORT: HTTP server port (default: 8090)
//   - DEPLOYMENT_MODE: single_node or distributed
//   - REDIS_URL, KNOWLEDGE_QUEUE_URL, AWS_REGION: distributed mode wiring
//   - DATABASE_URL: PostgreSQL connection string for the alert journal
func Run() {
	log.Println("Starting VentureScope runtime...")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	invoker := NewHTTPAgentInvoker()
	runtime, err := New(cfg, invoker)
	if err != nil {
		log.Fatalf("Failed to build runtime: %v", err)
	}

	ctx := context.Background()
	if err := runtime.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	api := &apiServer{runtime: runtime, invoker: invoker}

	r := mux.NewRouter()
	r.HandleFunc("/health", api.healthHandler).Methods("GET")
	r.HandleFunc("/stats", api.statsHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/v1/agents/register", api.registerAgentHandler).Methods("POST")
	r.HandleFunc("/api/v1/validate", api.startValidationHandler).Methods("POST")
	r.HandleFunc("/api/v1/workflows/{id}", api.workflowStatusHandler).Methods("GET")
	r.HandleFunc("/api/v1/workflows/{id}/result", api.workflowResultHandler).Methods("GET")
	r.HandleFunc("/api/v1/workflows/{id}/assumptions", api.trackAssumptionsHandler).Methods("POST")

	r.HandleFunc("/api/v1/sessions", api.createSessionHandler).Methods("POST")
	r.HandleFunc("/api/v1/sessions/{id}", api.getSessionHandler).Methods("GET")
	r.HandleFunc("/api/v1/sessions/{id}", api.cleanupSessionHandler).Methods("DELETE")

	r.HandleFunc("/api/v1/knowledge/share", api.shareKnowledgeHandler).Methods("POST")
	r.HandleFunc("/api/v1/knowledge/{agent_id}", api.receiveKnowledgeHandler).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: c.Handler(r),
	}

	go func() {
		log.Printf("VentureScope runtime listening on port %d", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down VentureScope runtime...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if err := runtime.Shutdown(shutdownCtx); err != nil {
		log.Printf("Runtime shutdown error: %v", err)
	}
}

type apiServer struct {
	runtime *Runtime
	invoker *HTTPAgentInvoker
}

func (a *apiServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"deployment_mode": a.runtime.Config.Deployment.Mode,
	})
}

func (a *apiServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"sessions":          a.runtime.Sessions.CountByStatus(),
		"memory":            a.runtime.Memory.GetMemoryStats(),
		"monitoring":        a.runtime.Supervisor.Monitor().GetMonitoringStats(),
		"active_workflows":  a.runtime.Supervisor.ActiveWorkflowCount(),
		"registered_agents": a.runtime.Supervisor.RegisteredAgentCount(),
	}
	if a.runtime.Journal != nil {
		stats["alert_journal"] = a.runtime.Journal.GetStats()
	}
	writeJSON(w, http.StatusOK, stats)
}

type registerAgentRequest struct {
	AgentID      string   `json:"agent_id"`
	AgentType    string   `json:"agent_type"`
	Capabilities []string `json:"capabilities"`
	Endpoint     string   `json:"endpoint"`
}

func (a *apiServer) registerAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "agent_id and endpoint are required")
		return
	}

	a.invoker.SetEndpoint(req.AgentID, req.Endpoint)
	a.runtime.Supervisor.RegisterAgent(req.AgentID, req.AgentType, req.Capabilities)
	writeJSON(w, http.StatusOK, map[string]interface{}{"registered": true})
}

func (a *apiServer) startValidationHandler(w http.ResponseWriter, r *http.Request) {
	var req types.ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	workflowID, err := a.runtime.Supervisor.StartWorkflow(req.OwnerID, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"workflow_id": workflowID})
}

func (a *apiServer) workflowStatusHandler(w http.ResponseWriter, r *http.Request) {
	status := a.runtime.Supervisor.GetWorkflowStatus(mux.Vars(r)["id"])
	if status == nil {
		writeError(w, http.StatusNotFound, "unknown workflow")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *apiServer) workflowResultHandler(w http.ResponseWriter, r *http.Request) {
	result := a.runtime.Supervisor.GetWorkflowResult(mux.Vars(r)["id"])
	if result == nil {
		writeError(w, http.StatusNotFound, "no result available")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *apiServer) trackAssumptionsHandler(w http.ResponseWriter, r *http.Request) {
	var assumptions map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&assumptions); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.runtime.Supervisor.Monitor().TrackValidationAssumptions(mux.Vars(r)["id"], assumptions)
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracked": true})
}

type createSessionRequest struct {
	AgentType string                 `json:"agent_type"`
	OwnerID   string                 `json:"owner_id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (a *apiServer) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := a.runtime.Sessions.Create(req.AgentType, req.OwnerID, req.Metadata)
	if err != nil {
		if errors.Is(err, session.ErrCapacity) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (a *apiServer) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := a.runtime.Sessions.Get(mux.Vars(r)["id"])
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *apiServer) cleanupSessionHandler(w http.ResponseWriter, r *http.Request) {
	removed := a.runtime.Sessions.Cleanup(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

type shareKnowledgeRequest struct {
	SenderAgentID  string                 `json:"sender_agent_id"`
	KnowledgeType  string                 `json:"knowledge_type"`
	Content        map[string]interface{} `json:"content"`
	TargetAgentIDs []string               `json:"target_agent_ids,omitempty"`
}

func (a *apiServer) shareKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	var req shareKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.runtime.Memory.ShareKnowledge(r.Context(), req.SenderAgentID, req.KnowledgeType, req.Content, req.TargetAgentIDs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"shared": true})
}

func (a *apiServer) receiveKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	envelopes, err := a.runtime.Memory.ReceiveSharedKnowledge(r.Context(), mux.Vars(r)["agent_id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": envelopes})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
