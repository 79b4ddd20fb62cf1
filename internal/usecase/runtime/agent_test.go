package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"devspace/internal/domain"
)

func TestNewDefaults(t *testing.T) {
	a := New(domain.AgentConfig{Name: "bot1"}, NewEchoBehavior())

	snap := a.GetStatus()
	if !strings.HasPrefix(snap.AgentID, "bot1_") || len(snap.AgentID) <= len("bot1_") {
		t.Errorf("agent_id = %q, want bot1_<id>", snap.AgentID)
	}
	if snap.Name != "bot1" {
		t.Errorf("name = %q", snap.Name)
	}
	if snap.Status != domain.StatusIdle {
		t.Errorf("status = %q, want idle", snap.Status)
	}
	if snap.CurrentTask != nil {
		t.Errorf("current_task = %q, want nil", *snap.CurrentTask)
	}
	if snap.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q", snap.Model)
	}
	if len(a.History()) != 0 {
		t.Errorf("history len = %d, want 0", len(a.History()))
	}
	if len(a.ContextSnapshot()) != 0 {
		t.Errorf("context len = %d, want 0", len(a.ContextSnapshot()))
	}

	cfg := a.Config()
	if cfg.MaxTokens != 4096 || cfg.TemperatureValue() != 0.7 || cfg.Tools == nil {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestNewKeepsExplicitZeroTemperature(t *testing.T) {
	zero := 0.0
	a := New(domain.AgentConfig{Name: "cold", Temperature: &zero}, NewEchoBehavior())
	if got := a.Config().TemperatureValue(); got != 0 {
		t.Errorf("temperature = %v, want 0", got)
	}
}

func TestAgentIDsUnique(t *testing.T) {
	const n = 200
	seen := make(map[string]bool, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := New(domain.AgentConfig{Name: "same"}, NewEchoBehavior()).ID()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Errorf("got %d distinct ids, want %d", len(seen), n)
	}
}

func TestUpdateStatusTask(t *testing.T) {
	a := New(domain.AgentConfig{Name: "s"}, NewEchoBehavior())

	a.UpdateStatus(domain.StatusActive, strPtr("t"))
	snap := a.GetStatus()
	if snap.Status != domain.StatusActive || snap.CurrentTask == nil || *snap.CurrentTask != "t" {
		t.Fatalf("after (active, t): %+v", snap)
	}

	a.UpdateStatus(domain.StatusIdle, nil)
	snap = a.GetStatus()
	if snap.Status != domain.StatusIdle {
		t.Errorf("status = %q, want idle", snap.Status)
	}
	if snap.CurrentTask == nil || *snap.CurrentTask != "t" {
		t.Errorf("nil task should leave current_task unchanged, got %v", snap.CurrentTask)
	}
}

func TestUpdateStatusUnrestricted(t *testing.T) {
	a := New(domain.AgentConfig{Name: "s"}, NewEchoBehavior())
	seq := []domain.AgentStatus{domain.StatusStopped, domain.StatusActive, domain.StatusError, domain.StatusIdle, domain.StatusStopped}
	for _, st := range seq {
		a.UpdateStatus(st, nil)
		if got := a.GetStatus().Status; got != st {
			t.Fatalf("status = %q, want %q", got, st)
		}
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	a := New(domain.AgentConfig{Name: "s"}, NewEchoBehavior())
	err := a.Transition(domain.AgentStatus("sleeping"), nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if a.GetStatus().Status != domain.StatusIdle {
		t.Error("status changed on rejected transition")
	}
}

func TestTransitionGuard(t *testing.T) {
	terminal := func(from, _ domain.AgentStatus) bool { return from != domain.StatusStopped }
	var observed []domain.AgentStatus
	a := New(domain.AgentConfig{Name: "g"}, NewEchoBehavior(),
		WithTransitionGuard(terminal),
		WithStatusObserver(func(_ string, _, to domain.AgentStatus) { observed = append(observed, to) }),
	)

	if err := a.Transition(domain.StatusStopped, nil); err != nil {
		t.Fatalf("idle -> stopped: %v", err)
	}
	if err := a.Transition(domain.StatusActive, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("stopped -> active: expected ErrInvalidInput, got %v", err)
	}
	if len(observed) != 1 || observed[0] != domain.StatusStopped {
		t.Errorf("observer saw %v, want [stopped]", observed)
	}
}

func TestHistoryAppendOnly(t *testing.T) {
	a := New(domain.AgentConfig{Name: "h"}, NewEchoBehavior())
	a.AddToHistory("user", "hi")
	a.AddToHistory("assistant", "hello")
	a.AddToHistory("narrator", "free-form roles are accepted")

	h := a.History()
	want := []domain.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "narrator", Content: "free-form roles are accepted"},
	}
	if len(h) != len(want) {
		t.Fatalf("history len = %d, want %d", len(h), len(want))
	}
	for i := range want {
		if h[i] != want[i] {
			t.Errorf("history[%d] = %+v, want %+v", i, h[i], want[i])
		}
	}

	h[0].Content = "mutated"
	if a.History()[0].Content != "hi" {
		t.Error("History returned an aliased slice")
	}

	a.ClearHistory()
	if len(a.History()) != 0 {
		t.Errorf("history len after clear = %d", len(a.History()))
	}
}

func TestContextOverwriteAndClear(t *testing.T) {
	a := New(domain.AgentConfig{Name: "c"}, NewEchoBehavior())
	a.SetContext("k", domain.String("v1"))
	a.SetContext("k", domain.Number(2))
	a.SetContext("other", domain.Bool(true))

	v, ok := a.GetContext("k")
	if !ok || !v.Equal(domain.Number(2)) {
		t.Errorf("GetContext(k) = %v, %v; want 2, true", v, ok)
	}

	a.ClearContext()
	for _, k := range []string{"k", "other"} {
		if _, ok := a.GetContext(k); ok {
			t.Errorf("key %q present after ClearContext", k)
		}
	}
}

func TestExecuteActionToolNotEnabled(t *testing.T) {
	tools := fakeTools{"deploy": &fakeTool{name: "deploy"}}
	a := New(domain.AgentConfig{Name: "t"}, NewToolBehavior(tools))

	_, err := a.ExecuteAction(context.Background(), "deploy", map[string]domain.Value{})
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if tools["deploy"].(*fakeTool).last != nil {
		t.Error("tool ran although it is not enabled")
	}
}

func TestExecuteActionNilParams(t *testing.T) {
	a := New(domain.AgentConfig{Name: "e"}, NewEchoBehavior())
	out, err := a.ExecuteAction(context.Background(), ActionClearHistory, nil)
	if err != nil {
		t.Fatalf("ExecuteAction: %v", err)
	}
	if n, _ := out["cleared"].AsNumber(); n != 0 {
		t.Errorf("cleared = %v", n)
	}
}

func TestGetStatusDuringBlockedCall(t *testing.T) {
	p := &fakeProvider{reply: "done", block: make(chan struct{}), started: make(chan struct{})}
	a := New(domain.AgentConfig{Name: "slow"}, NewChatBehavior(p, WithTokenCounter(HeuristicCounter{})))

	errc := make(chan error, 1)
	go func() {
		_, err := a.ProcessMessage(context.Background(), "hi", nil)
		errc <- err
	}()
	<-p.started

	statusDone := make(chan struct{})
	go func() {
		a.GetStatus()
		a.History()
		a.SetContext("k", domain.String("v"))
		close(statusDone)
	}()
	select {
	case <-statusDone:
	case <-time.After(2 * time.Second):
		t.Fatal("state access blocked behind an in-flight backend call")
	}

	close(p.block)
	if err := <-errc; err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if len(a.History()) != 2 {
		t.Errorf("history len = %d, want 2", len(a.History()))
	}
}

func TestSummary(t *testing.T) {
	a := New(domain.AgentConfig{Name: "sum", Tools: []string{"clock"}}, NewToolBehavior(fakeTools{}))
	s := a.Summary()
	if s.Kind != domain.AgentKindTool || len(s.Tools) != 1 || s.AgentID != a.ID() {
		t.Errorf("summary = %+v", s)
	}
}

func TestStateCommit(t *testing.T) {
	st := newState("a_1", domain.AgentConfig{Name: "a"})
	msg := domain.Message{Role: domain.RoleUser, Content: "x"}

	if err := st.Commit(context.Background(), func() { st.AppendHistory(msg) }); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.Commit(ctx, func() { st.AppendHistory(msg) }); !errors.Is(err, context.Canceled) {
		t.Errorf("done ctx: %v", err)
	}

	g := &callGate{}
	g.start()
	st.setGate(g)
	if dropped, started := g.abandon(); !dropped || !started {
		t.Fatalf("abandon = %v, %v", dropped, started)
	}
	if err := st.Commit(context.Background(), func() { st.AppendHistory(msg) }); !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("abandoned gate: %v", err)
	}
	if st.HistoryLen() != 1 {
		t.Errorf("history len = %d, want 1", st.HistoryLen())
	}

	committed := &callGate{}
	committed.start()
	if !committed.commit() {
		t.Fatal("commit refused")
	}
	if dropped, _ := committed.abandon(); dropped {
		t.Error("committed call was dropped")
	}
}
