package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"devspace/internal/usecase/scheduling"
)

// TaskScheduler is the scheduler surface exposed over HTTP.
type TaskScheduler interface {
	Tasks() []scheduling.TaskInfo
	RunNow(ctx context.Context, name string) error
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.sched.Tasks()
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// handleRunTask runs a task immediately and reports its state afterwards. A
// failed run still answers 200; the failure is in last_error.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := s.sched.RunNow(r.Context(), name)
	for _, t := range s.sched.Tasks() {
		if t.Name == name {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	if err == nil {
		// removed while running
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeError(w, r, err)
}
