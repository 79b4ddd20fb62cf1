package scheduling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
	"devspace/internal/usecase/eventbus"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAgents records what the scheduler dispatched.
type fakeAgents struct {
	mu       sync.Mutex
	sends    atomic.Int32
	acts     atomic.Int32
	lastRef  string
	lastMsg  string
	lastAct  string
	params   map[string]domain.Value
	err      error
	deadline bool
}

func (f *fakeAgents) Send(ctx context.Context, ref, message string, _ map[string]domain.Value) (string, error) {
	f.mu.Lock()
	f.lastRef, f.lastMsg = ref, message
	_, f.deadline = ctx.Deadline()
	f.mu.Unlock()
	f.sends.Add(1)
	return "ok", f.err
}

func (f *fakeAgents) Act(_ context.Context, ref, action string, params map[string]domain.Value) (map[string]domain.Value, error) {
	f.mu.Lock()
	f.lastRef, f.lastAct, f.params = ref, action, params
	f.mu.Unlock()
	f.acts.Add(1)
	return nil, f.err
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(&fakeAgents{}, nil, newTestLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSchedulerMessageTaskFires(t *testing.T) {
	agents := &fakeAgents{}
	s := NewScheduler(agents, nil, newTestLogger())
	if err := s.AddTask(ScheduledTask{
		Name: "ping", Schedule: "50ms", Agent: "bot", Message: "status?",
	}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if c := agents.sends.Load(); c < 1 {
		t.Fatalf("task fired %d times, expected at least 1", c)
	}
	agents.mu.Lock()
	defer agents.mu.Unlock()
	if agents.lastRef != "bot" || agents.lastMsg != "status?" {
		t.Errorf("dispatched to %q with %q", agents.lastRef, agents.lastMsg)
	}
	if !agents.deadline {
		t.Error("task context has no deadline")
	}
}

func TestSchedulerActionTask(t *testing.T) {
	agents := &fakeAgents{}
	s := NewScheduler(agents, nil, newTestLogger())
	task, err := TaskFromConfig(config.ScheduledTaskConfig{
		Name:     "clock",
		Schedule: "@every 1h",
		Agent:    "worker",
		Action:   "clock",
		Params:   map[string]any{"action": "now", "timezone": "UTC"},
	})
	if err != nil {
		t.Fatalf("TaskFromConfig: %v", err)
	}
	if err := s.AddTask(task); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if err := s.RunNow(context.Background(), "clock"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	agents.mu.Lock()
	defer agents.mu.Unlock()
	if agents.lastAct != "clock" {
		t.Errorf("action = %q", agents.lastAct)
	}
	if tz, _ := agents.params["timezone"].AsString(); tz != "UTC" {
		t.Errorf("params = %v", agents.params)
	}
}

func TestSchedulerOneShot(t *testing.T) {
	agents := &fakeAgents{}
	s := NewScheduler(agents, nil, newTestLogger())
	s.AddTask(ScheduledTask{Name: "once", Schedule: "30ms", Agent: "bot", Message: "hi", OneShot: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if c := agents.sends.Load(); c != 1 {
		t.Errorf("one-shot fired %d times, want 1", c)
	}
	if n := len(s.Tasks()); n != 0 {
		t.Errorf("tasks after one-shot = %d, want 0", n)
	}
}

func TestSchedulerContextCancellation(t *testing.T) {
	agents := &fakeAgents{}
	s := NewScheduler(agents, nil, newTestLogger())
	s.AddTask(ScheduledTask{Name: "ctx-task", Schedule: "50ms", Agent: "bot", Message: "hi"})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	cancel()
	s.Stop()

	countAfterCancel := agents.sends.Load()
	time.Sleep(100 * time.Millisecond)

	if agents.sends.Load() != countAfterCancel {
		t.Error("task continued after context cancellation")
	}
}

func TestSchedulerFailureRecordedAndPublished(t *testing.T) {
	bus := eventbus.New(newTestLogger())
	defer bus.Close()

	fired := make(chan domain.Event, 8)
	bus.Subscribe(domain.EventSchedulerJobFired, func(_ context.Context, ev domain.Event) {
		fired <- ev
	})

	agents := &fakeAgents{err: fmt.Errorf("agent: %w", domain.ErrNotFound)}
	s := NewScheduler(agents, bus, newTestLogger(), WithTaskTimeout(time.Second))
	s.AddTask(ScheduledTask{Name: "failing", Schedule: "1h", Agent: "ghost", Message: "hi"})

	err := s.RunNow(context.Background(), "failing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RunNow err = %v, want ErrNotFound", err)
	}

	tasks := s.Tasks()
	if len(tasks) != 1 || tasks[0].Runs != 1 || tasks[0].LastError == "" {
		t.Errorf("tasks = %+v", tasks)
	}

	select {
	case ev := <-fired:
		if len(ev.Payload) == 0 {
			t.Error("job_fired event has no payload")
		}
	case <-time.After(time.Second):
		t.Fatal("no scheduler.job_fired event")
	}
}

func TestSchedulerAddTaskErrors(t *testing.T) {
	s := NewScheduler(&fakeAgents{}, nil, newTestLogger())

	tests := []struct {
		name string
		task ScheduledTask
		want error
	}{
		{"no name", ScheduledTask{Schedule: "1m", Agent: "a", Message: "m"}, domain.ErrInvalidInput},
		{"no agent", ScheduledTask{Name: "x", Schedule: "1m", Message: "m"}, domain.ErrInvalidInput},
		{"neither", ScheduledTask{Name: "x", Schedule: "1m", Agent: "a"}, domain.ErrInvalidInput},
		{"both", ScheduledTask{Name: "x", Schedule: "1m", Agent: "a", Message: "m", Action: "b"}, domain.ErrInvalidInput},
		{"bad schedule", ScheduledTask{Name: "x", Schedule: "soon", Agent: "a", Message: "m"}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AddTask(tt.task); !errors.Is(err, tt.want) {
				t.Errorf("AddTask err = %v, want %v", err, tt.want)
			}
		})
	}

	ok := ScheduledTask{Name: "dup", Schedule: "1m", Agent: "a", Message: "m"}
	if err := s.AddTask(ok); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := s.AddTask(ok); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate err = %v", err)
	}
}

func TestSchedulerRemoveTask(t *testing.T) {
	s := NewScheduler(&fakeAgents{}, nil, newTestLogger())
	s.AddTask(ScheduledTask{Name: "a", Schedule: "1m", Agent: "bot", Message: "m"})

	if err := s.RemoveTask("a"); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	if err := s.RemoveTask("a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second RemoveTask err = %v", err)
	}
	if err := s.RunNow(context.Background(), "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RunNow removed err = %v", err)
	}
}

func TestSchedulerLoadTasks(t *testing.T) {
	s := NewScheduler(&fakeAgents{}, nil, newTestLogger())
	err := s.LoadTasks([]config.ScheduledTaskConfig{
		{Name: "b", Schedule: "*/5 * * * *", Agent: "bot", Message: "tick"},
		{Name: "a", Schedule: "30m", Agent: "bot", Action: "context_keys"},
	})
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	tasks := s.Tasks()
	if len(tasks) != 2 || tasks[0].Name != "a" || tasks[1].Name != "b" {
		t.Errorf("tasks = %+v", tasks)
	}

	err = s.LoadTasks([]config.ScheduledTaskConfig{{Name: "c", Schedule: "", Agent: "bot", Message: "m"}})
	if err == nil {
		t.Error("expected error for empty schedule")
	}
}

func TestSchedulerStopWhileTaskRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	agents := &blockingAgents{started: started, release: release}
	s := NewScheduler(agents, nil, newTestLogger())
	s.AddTask(ScheduledTask{Name: "slow", Schedule: "20ms", Agent: "bot", Message: "m", OneShot: true})

	s.Start(context.Background())
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task never started")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop deadlocked waiting for a running task")
	}
}

type blockingAgents struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingAgents) Send(ctx context.Context, _, _ string, _ map[string]domain.Value) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return "", nil
}

func (b *blockingAgents) Act(context.Context, string, string, map[string]domain.Value) (map[string]domain.Value, error) {
	return nil, nil
}

func TestSchedulerDoubleStop(t *testing.T) {
	s := NewScheduler(&fakeAgents{}, nil, newTestLogger())
	s.Start(context.Background())

	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	s := NewScheduler(&fakeAgents{}, nil, newTestLogger())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop without start: %v", err)
	}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"@every 30m", false},
		{"@daily", false},
		{"30m", false},
		{"100ms", false},
		{"not-a-schedule", true},
		{"", true},
		{"-5m", true},
		{"0s", true},
	}
	for _, tt := range tests {
		sched, err := parseSchedule(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseSchedule(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || sched == nil {
			t.Errorf("parseSchedule(%q) = %v, %v", tt.in, sched, err)
		}
	}
}

func TestConstantDelay(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &constantDelay{delay: 250 * time.Millisecond}
	if got := d.Next(base); !got.Equal(base.Add(250 * time.Millisecond)) {
		t.Errorf("Next = %v", got)
	}
}
