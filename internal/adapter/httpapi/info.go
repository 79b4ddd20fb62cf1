package httpapi

import (
	"net/http"
	"time"

	"devspace/internal/adapter/llm"
	"devspace/internal/domain"
)

// section is one of the component areas listed under /api/v1.
type section struct {
	Path       string
	Summary    string
	Message    string
	Operations []string
}

var sections = []section{
	{
		Path:    "ai",
		Summary: "AI/ML operations",
		Message: "AI/ML Operations",
		Operations: []string{
			"agents - AI agent management",
			"trainers - Model training",
			"evals - Model evaluation",
			"actions - Agent actions",
		},
	},
	{
		Path:    "data",
		Summary: "Data operations",
		Message: "Data Operations",
		Operations: []string{
			"extractors - Data extraction",
			"transformers - Data transformation",
			"pipelines - Data pipelines",
		},
	},
	{
		Path:    "hardware",
		Summary: "Hardware operations",
		Message: "Hardware Operations",
		Operations: []string{
			"sensors - Sensor management",
			"actuators - Actuator control",
			"devices - Device provisioning",
		},
	},
	{
		Path:    "workflows",
		Summary: "Workflow operations",
		Message: "Workflow Operations",
		Operations: []string{
			"ai - AI workflows",
			"processes - Business processes",
			"automation - Automated workflows",
		},
	},
	{
		Path:    "jobs",
		Summary: "Background job operations",
		Message: "Job Operations",
		Operations: []string{
			"queue - Job queue management",
			"schedule - Scheduled jobs",
			"monitor - Job monitoring",
		},
	},
}

// SectionResponse is the body returned by the /api/v1/<section> routes.
type SectionResponse struct {
	Message             string   `json:"message"`
	AvailableOperations []string `json:"available_operations"`
	Status              string   `json:"status"`
}

func sectionHandler(sec section) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, SectionResponse{
			Message:             sec.Message,
			AvailableOperations: sec.Operations,
			Status:              "ready",
		})
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to DevSpace API",
		"version": s.cfg.Project.Version,
		"api":     "/api/v1/",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleAPIRoot(w http.ResponseWriter, _ *http.Request) {
	endpoints := make([]string, 0, len(sections)+4)
	for _, sec := range sections {
		endpoints = append(endpoints, "/"+sec.Path+" - "+sec.Summary)
	}
	endpoints = append(endpoints,
		"/agents - Agent runtime",
		"/events - Event stream (websocket)",
		"/status - System status",
	)
	if s.sched != nil {
		endpoints = append(endpoints, "/scheduler/tasks - Scheduled agent tasks")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "DevSpace API v1",
		"endpoints": endpoints,
	})
}

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	System        string               `json:"system"`
	Version       string               `json:"version"`
	Environment   string               `json:"environment"`
	Components    map[string]string    `json:"components"`
	OverallStatus string               `json:"overall_status"`
	Agents        AgentCounts          `json:"agents"`
	Tools         []string             `json:"tools"`
	Providers     []llm.ProviderHealth `json:"providers,omitempty"`
	UptimeSeconds int64                `json:"uptime_seconds"`
}

// AgentCounts holds the number of registered agents per status.
type AgentCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	components := make(map[string]string, len(sections))
	for _, sec := range sections {
		components[sec.Path] = "ready"
	}

	reg := s.sup.Registry()
	byStatus := make(map[string]int, len(domain.AllStatuses()))
	for _, st := range domain.AllStatuses() {
		byStatus[string(st)] = 0
	}
	for st, n := range reg.CountByStatus() {
		byStatus[string(st)] = n
	}

	tools := []string{}
	if s.tools != nil {
		for _, schema := range s.tools.Schemas() {
			tools = append(tools, schema.Name)
		}
	}

	overall := "operational"
	var providers []llm.ProviderHealth
	if s.llms != nil {
		providers = s.llms.Health()
		for _, p := range providers {
			if !p.Healthy() {
				overall = "degraded"
				components["ai"] = "degraded"
			}
		}
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		System:        s.cfg.Project.Name,
		Version:       s.cfg.Project.Version,
		Environment:   s.cfg.Project.Environment,
		Components:    components,
		OverallStatus: overall,
		Agents:        AgentCounts{Total: reg.Len(), ByStatus: byStatus},
		Tools:         tools,
		Providers:     providers,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}
