// Package security holds the audit trail of agent activity.
package security

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"devspace/internal/domain"
	"devspace/internal/infra/tracer"
)

var errAuditClosed = errors.New("audit trail closed")

// maxEntryBytes caps one audit line during retention. Longer lines are dropped.
const maxEntryBytes = 1 << 20

// RetentionPolicy bounds the audit file. Zero values disable a limit.
type RetentionPolicy struct {
	MaxAge  time.Duration
	MaxSize int64
}

// AuditTrail appends every bus event to a JSONL file, one event per line.
type AuditTrail struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	retention RetentionPolicy
	logger    *slog.Logger
}

// OpenAuditTrail opens path for appending, creating the file (0600) and its
// directory when needed.
func OpenAuditTrail(path string, logger *slog.Logger) (*AuditTrail, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit trail: %w", err)
	}
	return &AuditTrail{file: f, path: path, logger: logger}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

// Path returns the file the trail writes to.
func (a *AuditTrail) Path() string { return a.path }

// SetRetention configures the policy applied by EnforceRetention.
func (a *AuditTrail) SetRetention(policy RetentionPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retention = policy
}

// Record writes one event. When a span is active the event is mirrored as a
// span event.
func (a *AuditTrail) Record(ctx context.Context, ev domain.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return domain.NewDomainError("AuditTrail.Record", domain.ErrInvalidInput, err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return errAuditClosed
	}
	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("audit."+string(ev.Type), trace.WithAttributes(
			tracer.StringAttr("audit.agent_id", ev.AgentID),
		))
	}
	return nil
}

// Attach subscribes the trail to every event on bus. Write failures are
// logged, never propagated to publishers. The returned func unsubscribes.
func (a *AuditTrail) Attach(bus domain.EventBus) func() {
	return bus.SubscribeAll(func(ctx context.Context, ev domain.Event) {
		if err := a.Record(ctx, ev); err != nil && !errors.Is(err, errAuditClosed) {
			a.logger.Warn("audit write failed", "type", ev.Type, "agent_id", ev.AgentID, "error", err)
		}
	})
}

// Close closes the file. Later records are dropped.
func (a *AuditTrail) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// EnforceRetention rewrites the file keeping only entries within the policy:
// entries older than MaxAge go first, then the oldest entries until the file
// fits MaxSize. It returns the number of entries removed.
func (a *AuditTrail) EnforceRetention(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	policy := a.retention
	if policy.MaxAge <= 0 && policy.MaxSize <= 0 {
		return 0, nil
	}
	if a.file == nil {
		return 0, errAuditClosed
	}
	if policy.MaxAge <= 0 {
		if info, err := os.Stat(a.path); err == nil && info.Size() <= policy.MaxSize {
			return 0, nil
		}
	}

	kept, removed, err := readKept(ctx, a.path, policy)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := a.path + ".tmp"
	if err := writeLines(tmp, kept); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := a.file.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("close for retention: %w", err)
	}
	renameErr := os.Rename(tmp, a.path)
	if renameErr != nil {
		os.Remove(tmp)
	}
	f, err := openAppend(a.path)
	if err != nil {
		a.file = nil
		return 0, fmt.Errorf("reopen audit trail: %w", err)
	}
	a.file = f
	if renameErr != nil {
		return 0, fmt.Errorf("replace audit trail: %w", renameErr)
	}
	a.logger.Info("audit retention applied", "removed", removed, "kept", len(kept))
	return removed, nil
}

func readKept(ctx context.Context, path string, policy RetentionPolicy) ([][]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()

	var cutoff time.Time
	if policy.MaxAge > 0 {
		cutoff = time.Now().Add(-policy.MaxAge)
	}

	var (
		kept    [][]byte
		size    int64
		removed int
	)
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		line, oversized, err := readLine(r, maxEntryBytes)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("read audit trail: %w", err)
		}
		switch {
		case oversized:
			removed++
		case len(line) == 0:
		case expired(line, cutoff):
			removed++
		default:
			kept = append(kept, line)
			size += int64(len(line)) + 1
		}
		if err != nil {
			break
		}
	}

	for policy.MaxSize > 0 && size > policy.MaxSize && len(kept) > 0 {
		size -= int64(len(kept[0])) + 1
		kept = kept[1:]
		removed++
	}
	return kept, removed, nil
}

func expired(line []byte, cutoff time.Time) bool {
	if cutoff.IsZero() {
		return false
	}
	var entry struct {
		Timestamp time.Time `json:"timestamp"`
	}
	return json.Unmarshal(line, &entry) == nil && entry.Timestamp.Before(cutoff)
}

// readLine returns the next line without its newline. A line longer than limit
// is consumed and reported as oversized with no content.
func readLine(r *bufio.Reader, limit int) (line []byte, oversized bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			content := bytes.TrimSuffix(chunk, []byte{'\n'})
			if len(line)+len(content) > limit {
				line, oversized = nil, true
			} else {
				line = append(line, content...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversized, err
	}
}

func writeLines(path string, lines [][]byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	return f.Close()
}

// ParseSize parses a human-readable size such as "512KB", "10MB" or "1GB".
// An empty string means no limit.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, domain.NewDomainError("ParseSize", domain.ErrInvalidInput, fmt.Sprintf("bad size %q", s))
	}
	if n > math.MaxInt64/multiplier {
		return 0, domain.NewDomainError("ParseSize", domain.ErrInvalidInput, fmt.Sprintf("size %q is too large", s))
	}
	return n * multiplier, nil
}
