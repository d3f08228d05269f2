package migration

import (
	"context"
	"sync"
	"time"

	"github.com/artemis/fleetmigrate/internal/backup"
	"github.com/artemis/fleetmigrate/internal/transfer"
)

// Status is the terminal or in-flight state of a migration context.
type Status string

const (
	StatusPending              Status = "pending"
	StatusRunning              Status = "running"
	StatusSuccess              Status = "success"
	StatusFailedRolledBack     Status = "failed_rolled_back"
	StatusFailedRollbackFailed Status = "failed_rollback_failed"
	StatusCancelled            Status = "cancelled"
)

// FailurePolicy governs what the orchestrator does when a phase reports
// an error: short-circuit the whole pipeline, record and continue, or
// merely annotate the result for the operator.
type FailurePolicy int

const (
	Fatal FailurePolicy = iota
	FatalRollback
	WarnOnly
	Advisory
)

// PhaseResult is the structured outcome the orchestrator records for
// every phase it runs, keyed by phase name so a second invocation on the
// same context can short-circuit already-completed phases.
type PhaseResult struct {
	Phase     string         `json:"phase"`
	Status    string         `json:"status"` // ok, warn, failed, skipped
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// PortAdjustment records one P11 host-port remap for the operator-visible result.
type PortAdjustment struct {
	Service       string `json:"service"`
	OldHostPort   int    `json:"old_host_port"`
	NewHostPort   int    `json:"new_host_port"`
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol,omitempty"`
}

// Request describes one migrate_stack call as it crosses the external
// interface boundary, already parsed and validated by the dispatcher.
type Request struct {
	MigrationID    string
	SourceHostID   string
	TargetHostID   string
	StackName      string
	DryRun         bool
	SkipStopSource bool
	RemoveSource   bool
	Recursive      bool
	ForceReceive   bool
}

// Context is one migration's mutable, owned-by-its-orchestrator state. It
// is never shared between migrations; the only cross-migration shared
// state lives in the SSH pool and the deletion manifest.
type Context struct {
	Request

	mu           sync.Mutex
	Status       Status
	CurrentPhase string
	PhaseResults map[string]PhaseResult
	Warnings     []string
	Errors       []string

	ComposeText      string
	RewrittenCompose string
	// Volumes holds the stack's volumes as declared on the source host;
	// MappedVolumes carries the same entries with bind-mount sources
	// rewritten to their target-host paths. Both are kept because the
	// transfer phase needs the source side and verification needs the
	// target side.
	Volumes       []Volume
	MappedVolumes []Volume
	PathMap       map[string]string

	PortAdjustments []PortAdjustment
	Risk            int
	BackupRef       *backup.Record
	TransferResult  *transfer.Result
	TransferMethod  string

	StartedAt time.Time
	EndedAt   time.Time

	cancel context.CancelFunc
}

func newContext(req Request) *Context {
	return &Context{
		Request:      req,
		Status:       StatusPending,
		PhaseResults: make(map[string]PhaseResult),
	}
}

// recordPhase stores ph's result and appends any warning/error text to
// the context's operator-visible summaries.
func (c *Context) recordPhase(ph PhaseResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PhaseResults[ph.Phase] = ph
	switch ph.Status {
	case "warn":
		c.Warnings = append(c.Warnings, ph.Phase+": "+ph.Message)
	case "failed":
		c.Errors = append(c.Errors, ph.Phase+": "+ph.Message)
	}
}

// phaseDone reports whether phase has already completed successfully,
// the idempotency hook a repeat invocation uses to skip finished work.
func (c *Context) phaseDone(phase string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.PhaseResults[phase]
	return ok && (r.Status == "ok" || r.Status == "skipped")
}

// Snapshot is a read-only, race-free copy of a Context's operator-visible
// fields, safe to read from outside the migration package (the HTTP status
// endpoint polls this rather than touching Context's internal mutex).
type Snapshot struct {
	MigrationID  string
	Status       Status
	CurrentPhase string
	Risk         int
	Warnings     []string
	Errors       []string
}

// Snapshot copies c's current operator-visible state under lock.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		MigrationID:  c.MigrationID,
		Status:       c.Status,
		CurrentPhase: c.CurrentPhase,
		Risk:         c.Risk,
		Warnings:     append([]string(nil), c.Warnings...),
		Errors:       append([]string(nil), c.Errors...),
	}
}

// Result is the structured outcome returned to the external dispatcher.
type Result struct {
	Success     bool           `json:"success"`
	MigrationID string         `json:"migration_id"`
	Status      Status         `json:"status"`
	Phases      []PhaseResult  `json:"phases"`
	Warnings    []string       `json:"warnings"`
	Errors      []string       `json:"errors"`
	Risk        int            `json:"risk"`
	BackupRef   *backup.Record `json:"backup_ref,omitempty"`
	Stats       map[string]any `json:"stats,omitempty"`
}
