package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
)

const defaultTaskTimeout = 5 * time.Minute

// AgentDispatcher delivers scheduled work to agents. Refs are agent IDs or names.
type AgentDispatcher interface {
	Send(ctx context.Context, ref, message string, msgCtx map[string]domain.Value) (string, error)
	Act(ctx context.Context, ref, action string, params map[string]domain.Value) (map[string]domain.Value, error)
}

// ScheduledTask sends a message to, or runs an action on, one agent on a
// recurring schedule. Exactly one of Message and Action is set.
type ScheduledTask struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30m"
	Agent    string
	Message  string
	Action   string
	Params   map[string]domain.Value
	OneShot  bool
}

// TaskFromConfig converts a configured task.
func TaskFromConfig(c config.ScheduledTaskConfig) (ScheduledTask, error) {
	params := make(map[string]domain.Value, len(c.Params))
	for k, v := range c.Params {
		conv, err := domain.ValueOf(v)
		if err != nil {
			return ScheduledTask{}, fmt.Errorf("scheduler: task %q param %q: %w", c.Name, k, err)
		}
		params[k] = conv
	}
	return ScheduledTask{
		Name:     c.Name,
		Schedule: c.Schedule,
		Agent:    c.Agent,
		Message:  c.Message,
		Action:   c.Action,
		Params:   params,
		OneShot:  c.OneShot,
	}, nil
}

// Validate checks the task for missing fields.
func (t ScheduledTask) Validate() error {
	switch {
	case t.Name == "":
		return domain.NewDomainError("ScheduledTask.Validate", domain.ErrInvalidInput, "name is required")
	case t.Agent == "":
		return domain.NewDomainError("ScheduledTask.Validate", domain.ErrInvalidInput, fmt.Sprintf("task %q: agent is required", t.Name))
	case (t.Message == "") == (t.Action == ""):
		return domain.NewDomainError("ScheduledTask.Validate", domain.ErrInvalidInput,
			fmt.Sprintf("task %q: exactly one of message and action must be set", t.Name))
	}
	return nil
}

// TaskInfo is the observable state of a scheduled task.
type TaskInfo struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Agent     string    `json:"agent"`
	OneShot   bool      `json:"one_shot"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitzero"`
}

type taskEntry struct {
	task    ScheduledTask
	entryID cron.EntryID
	runs    int
	lastRun time.Time
	lastErr error
	fired   atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTaskTimeout bounds each run of a task.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.taskTimeout = d
		}
	}
}

// Scheduler runs agent tasks on a recurring schedule using cron expressions or durations.
type Scheduler struct {
	cron        *cron.Cron
	agents      AgentDispatcher
	bus         domain.EventBus
	tasks       map[string]*taskEntry
	taskTimeout time.Duration
	logger      *slog.Logger
	mu          sync.Mutex
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewScheduler creates a scheduler. bus may be nil.
func NewScheduler(agents AgentDispatcher, bus domain.EventBus, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:        cron.New(),
		agents:      agents,
		bus:         bus,
		tasks:       make(map[string]*taskEntry),
		taskTimeout: defaultTaskTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTask adds a scheduled task. The schedule can be a cron expression or a duration string.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return domain.NewDomainError("Scheduler.AddTask", domain.ErrInvalidInput,
			fmt.Sprintf("task %q: %v", task.Name, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.Name]; exists {
		return domain.NewDomainError("Scheduler.AddTask", domain.ErrDuplicate, fmt.Sprintf("task %q", task.Name))
	}

	entry := &taskEntry{task: task}
	entry.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		if ctx == nil || ctx.Err() != nil {
			s.logger.Debug("scheduler stopped, skipping task", "task", task.Name)
			return
		}
		if task.OneShot && !entry.fired.CompareAndSwap(false, true) {
			return
		}

		s.runTask(ctx, entry)

		if task.OneShot {
			s.removeEntry(task.Name)
		}
	}))
	s.tasks[task.Name] = entry

	s.logger.Info("task added to scheduler", "name", task.Name, "schedule", task.Schedule, "agent", task.Agent)
	return nil
}

// RemoveTask removes a task by name.
func (s *Scheduler) RemoveTask(name string) error {
	if !s.removeEntry(name) {
		return domain.NewDomainError("Scheduler.RemoveTask", domain.ErrNotFound, fmt.Sprintf("task %q", name))
	}
	s.logger.Info("task removed from scheduler", "name", name)
	return nil
}

func (s *Scheduler) removeEntry(name string) bool {
	s.mu.Lock()
	entry, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	if ok {
		s.cron.Remove(entry.entryID)
	}
	return ok
}

// RunNow runs a task once, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	entry, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return domain.NewDomainError("Scheduler.RunNow", domain.ErrNotFound, fmt.Sprintf("task %q", name))
	}
	return s.runTask(ctx, entry)
}

func (s *Scheduler) runTask(ctx context.Context, entry *taskEntry) error {
	task := entry.task
	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	start := time.Now()
	var err error
	if task.Message != "" {
		_, err = s.agents.Send(taskCtx, task.Agent, task.Message, nil)
	} else {
		_, err = s.agents.Act(taskCtx, task.Agent, task.Action, task.Params)
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	entry.runs++
	entry.lastRun = start
	entry.lastErr = err
	s.mu.Unlock()

	payload := map[string]any{
		"task":        task.Name,
		"agent":       task.Agent,
		"ok":          err == nil,
		"duration_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		payload["error"] = err.Error()
		s.logger.Warn("scheduled task failed",
			"task", task.Name,
			"agent", task.Agent,
			"error", err,
			"duration", elapsed)
	} else {
		s.logger.Info("scheduled task completed",
			"task", task.Name,
			"agent", task.Agent,
			"duration", elapsed)
	}
	if s.bus != nil {
		s.bus.Publish(context.WithoutCancel(ctx), domain.NewEvent(domain.EventSchedulerJobFired, "", payload))
	}
	return err
}

// Tasks returns the state of every task, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	infos := make([]TaskInfo, 0, len(s.tasks))
	ids := make([]cron.EntryID, 0, len(s.tasks))
	for _, e := range s.tasks {
		info := TaskInfo{
			Name:     e.task.Name,
			Schedule: e.task.Schedule,
			Agent:    e.task.Agent,
			OneShot:  e.task.OneShot,
			Runs:     e.runs,
			LastRun:  e.lastRun,
		}
		if e.lastErr != nil {
			info.LastError = e.lastErr.Error()
		}
		infos = append(infos, info)
		ids = append(ids, e.entryID)
	}
	s.mu.Unlock()

	for i, id := range ids {
		if entry := s.cron.Entry(id); entry.ID != 0 {
			infos[i].NextRun = entry.Next
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Start begins running the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", "tasks", len(s.tasks))
	return nil
}

// Stop signals the scheduler to stop and waits for running jobs to finish.
// The lock is released before waiting since running jobs take it.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// LoadTasks adds every configured task, stopping at the first invalid one.
func (s *Scheduler) LoadTasks(tasks []config.ScheduledTaskConfig) error {
	for _, c := range tasks {
		task, err := TaskFromConfig(c)
		if err != nil {
			return err
		}
		if err := s.AddTask(task); err != nil {
			return err
		}
	}
	return nil
}

// parseSchedule tries to parse a schedule string as a cron expression first,
// then falls back to time.ParseDuration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return &constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval.
// Unlike cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
