package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Startup steps reported by /healthz while the server initializes
const (
	StepDatabase   = "Database connection"
	StepMigrations = "Running migrations"
	StepServices   = "Initializing services"
	StepReady      = "Server ready"
)

// StartupStatus tracks the initialization progress
type StartupStatus struct {
	mu       sync.RWMutex
	ready    bool
	current  string
	progress int
	steps    []StartupStep
}

type StartupStep struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// NewStartupStatus creates a status tracking the standard server steps
func NewStartupStatus() *StartupStatus {
	return &StartupStatus{
		current: "Initializing...",
		steps: []StartupStep{
			{Name: StepDatabase},
			{Name: StepMigrations},
			{Name: StepServices},
			{Name: StepReady},
		},
	}
}

// SetCurrentStep updates the current initialization step
func (s *StartupStatus) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = step
}

// CompleteStep marks a step as completed and updates progress
func (s *StartupStatus) CompleteStep(stepName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.steps {
		if s.steps[i].Name == stepName {
			s.steps[i].Completed = true
			break
		}
	}

	completed := 0
	for _, step := range s.steps {
		if step.Completed {
			completed++
		}
	}
	s.progress = (completed * 100) / len(s.steps)
}

// MarkReady marks the server as fully initialized
func (s *StartupStatus) MarkReady() {
	s.CompleteStep(StepReady)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.current = StepReady
	s.progress = 100
}

// IsReady returns whether the server is fully initialized
func (s *StartupStatus) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

type healthResponse struct {
	Status   string        `json:"status"`
	Current  string        `json:"current,omitempty"`
	Progress int           `json:"progress"`
	Steps    []StartupStep `json:"steps,omitempty"`
	Database string        `json:"database,omitempty"`
}

// Pinger is satisfied by *database.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports startup progress, then database reachability once ready
func (s *StartupStatus) Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		resp := healthResponse{
			Status:   "starting",
			Current:  s.current,
			Progress: s.progress,
			Steps:    append([]StartupStep(nil), s.steps...),
		}
		ready := s.ready
		s.mu.RUnlock()

		if !ready {
			respondWithJSON(w, http.StatusServiceUnavailable, resp)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Progress: 100, Database: err.Error()})
			return
		}
		respondWithJSON(w, http.StatusOK, healthResponse{Status: "ok", Progress: 100, Database: "ok"})
	}
}
