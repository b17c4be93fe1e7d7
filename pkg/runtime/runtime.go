// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime composes the policy core into one running system:
// actor registry, persona manager, mode controller, enforcer, guard,
// partition store, audit log, journal and the inference boundary, all
// behind a single Authorize entry point. Front ends hold a Runtime and
// nothing deeper.
package runtime

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/primus-os/primus/pkg/actor"
	"github.com/primus-os/primus/pkg/audit"
	"github.com/primus-os/primus/pkg/config"
	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/enforcer"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/guard"
	"github.com/primus-os/primus/pkg/inference"
	"github.com/primus-os/primus/pkg/journal"
	"github.com/primus-os/primus/pkg/mode"
	"github.com/primus-os/primus/pkg/partition"
	"github.com/primus-os/primus/pkg/persona"
	"github.com/primus-os/primus/pkg/ragindex"
	ragollama "github.com/primus-os/primus/pkg/ragindex/ollama"
	"github.com/primus-os/primus/pkg/ragindex/qdrant"
	"github.com/primus-os/primus/pkg/sealed"
	"github.com/primus-os/primus/pkg/telemetry"
)

// Runtime is the composition root. Every externally triggered action
// flows through it; nothing reaches a store or the inference boundary
// except via the guard it wires.
type Runtime struct {
	registry *actor.Registry
	personas *persona.Manager
	modes    *mode.Controller
	comms    *guard.CommsGuard
	enforcer *enforcer.Enforcer
	guard    *guard.Guard
	vault    *partition.Vault
	store    partition.Store
	auditLog audit.Log
	journal  *journal.Journal
	provider inference.Provider
	index    *ragindex.Index

	model       string
	temperature float64

	tracer  trace.Tracer
	log     *slog.Logger
	metrics *telemetry.Metrics

	sweepInterval time.Duration
	sweepTimeout  time.Duration
	sweepCancel   context.CancelFunc
	sweepDone     chan struct{}

	mu      sync.Mutex
	started bool
	health  *core.HealthCheckProvider

	db *sql.DB
}

// Option configures a Runtime. Options run after the vault and registry
// exist, so storage options can bind to the shared vault.
type Option func(*Runtime) error

// WithSQLite stores partitions, audit records and pending approvals in
// one SQLite database. The caller opens the database; the runtime does
// not close it.
func WithSQLite(db *sql.DB, opts ...partition.SQLiteOption) Option {
	return func(r *Runtime) error {
		store, err := partition.NewSQLiteStore(db, r.vault, opts...)
		if err != nil {
			return err
		}
		auditLog, err := audit.NewSQLiteLog(db)
		if err != nil {
			return err
		}
		approvals, err := mode.NewSQLiteApprovalStore(db)
		if err != nil {
			return err
		}
		r.store = store
		r.auditLog = auditLog
		r.modes = mode.NewController(approvals)
		return nil
	}
}

// WithFileStore keeps partitions as files under dir.
func WithFileStore(dir string, opts ...partition.FileOption) Option {
	return func(r *Runtime) error {
		store, err := partition.NewFileStore(dir, r.vault, opts...)
		if err != nil {
			return err
		}
		r.store = store
		return nil
	}
}

// WithAuditLog replaces the audit backend.
func WithAuditLog(l audit.Log) Option {
	return func(r *Runtime) error {
		r.auditLog = l
		return nil
	}
}

// WithApprovalStore replaces the pending approval backend.
func WithApprovalStore(s mode.ApprovalStore) Option {
	return func(r *Runtime) error {
		r.modes = mode.NewController(s)
		return nil
	}
}

// WithPersonaManager replaces the persona manager.
func WithPersonaManager(m *persona.Manager) Option {
	return func(r *Runtime) error {
		r.personas = m
		return nil
	}
}

// WithJournal attaches the Captain's Log journal. Without one, sandbox
// sessions work but cannot draft changes or take notes.
func WithJournal(j *journal.Journal) Option {
	return func(r *Runtime) error {
		r.journal = j
		return nil
	}
}

// WithProvider sets the inference backend.
func WithProvider(p inference.Provider) Option {
	return func(r *Runtime) error {
		r.provider = p
		return nil
	}
}

// WithModel sets the model and sampling temperature sent to the
// inference backend.
func WithModel(model string, temperature float64) Option {
	return func(r *Runtime) error {
		r.model = model
		r.temperature = temperature
		return nil
	}
}

// WithIndex attaches the partition-scoped vector index.
func WithIndex(ix *ragindex.Index) Option {
	return func(r *Runtime) error {
		r.index = ix
		return nil
	}
}

// WithLogger replaces the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) error {
		if l != nil {
			r.log = l
		}
		return nil
	}
}

// WithSweepInterval sets how often the orphan sweeper runs. Zero
// disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Runtime) error {
		r.sweepInterval = d
		return nil
	}
}

// WithSweepTimeout bounds one sweep pass.
func WithSweepTimeout(d time.Duration) Option {
	return func(r *Runtime) error {
		r.sweepTimeout = d
		return nil
	}
}

// New builds a runtime. Unconfigured pieces default to their in-memory
// backends; the provider and index stay nil until set.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		vault:         partition.NewVault(),
		registry:      actor.NewRegistry(),
		comms:         guard.NewCommsGuard(),
		log:           slog.Default(),
		tracer:        otel.Tracer("primus/runtime"),
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.personas == nil {
		m, err := persona.NewManager()
		if err != nil {
			return nil, err
		}
		r.personas = m
	}
	if r.modes == nil {
		r.modes = mode.NewController(nil)
	}
	if r.auditLog == nil {
		r.auditLog = audit.NewMemoryLog()
	}
	if r.store == nil {
		r.store = partition.NewMemoryStore(r.vault)
	}
	r.enforcer = enforcer.New(r.modes, r.comms, nil)
	r.guard = guard.New(r.registry, r.enforcer, r.modes, r.auditLog, r.vault)

	mets, err := telemetry.Instruments()
	if err != nil {
		r.log.Warn("runtime.metrics.unavailable", slog.String("error", err.Error()))
	}
	r.metrics = mets
	return r, nil
}

// NewFromConfig wires a runtime from configuration: storage backend,
// sandbox cipher, journal, persona snapshot, inference provider and the
// optional vector index.
func NewFromConfig(cfg *config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var cipher sealed.Cipher
	if cfg.Sandbox.Passphrase == "" {
		slog.Warn("config.sandbox.passphrase.empty",
			slog.String("effect", "sandbox partitions and journal entries are stored unsealed"))
		cipher = sealed.NoopCipher{}
	} else {
		c, err := sealed.NewPassphraseCipher(cfg.Sandbox.Passphrase)
		if err != nil {
			return nil, err
		}
		cipher = c
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
		return nil, errors.New(errors.CodeStorage, "creating data dir", err).
			WithContext("dir", cfg.Data.Dir)
	}

	opts := []Option{WithSweepInterval(cfg.Approvals.Sweep)}

	var ownedDB *sql.DB
	if cfg.Data.Backend == "sqlite" {
		db, err := sql.Open("sqlite", filepath.Join(cfg.Data.Dir, "primus.db"))
		if err != nil {
			return nil, errors.New(errors.CodeStorage, "opening database", err)
		}
		ownedDB = db
		opts = append(opts,
			WithSQLite(db, partition.WithSQLiteCipher(core.PartitionSandbox, cipher)),
			func(r *Runtime) error { r.db = db; return nil },
		)
	}

	j, err := journal.New(filepath.Join(cfg.Data.Dir, "journal"), cipher)
	if err != nil {
		closeDB(ownedDB)
		return nil, err
	}
	opts = append(opts, WithJournal(j))

	pm, err := persona.NewManager(persona.WithSnapshotPath(filepath.Join(cfg.Data.Dir, "personas.yaml")))
	if err != nil {
		closeDB(ownedDB)
		return nil, err
	}
	opts = append(opts, WithPersonaManager(pm))

	switch cfg.Inference.Provider {
	case "ollama":
		opts = append(opts, WithProvider(inference.NewOllama(cfg.Inference.URL)))
	case "mock":
		opts = append(opts, WithProvider(&inference.MockProvider{Response: "(mock reply)"}))
	default:
		closeDB(ownedDB)
		return nil, errors.New(errors.CodeConfig, "unknown inference provider", nil).
			WithContext("provider", cfg.Inference.Provider)
	}
	opts = append(opts, WithModel(cfg.Inference.Model, cfg.Inference.Temperature))

	if cfg.Index.Enabled {
		store, err := qdrant.New(cfg.Index.Qdrant)
		if err != nil {
			closeDB(ownedDB)
			return nil, err
		}
		emb := ragollama.NewEmbedder(cfg.Index.Embedder.URL, cfg.Index.Embedder.Model)
		opts = append(opts, WithIndex(ragindex.NewIndex(store, emb)))
	}

	r, err := New(opts...)
	if err != nil {
		closeDB(ownedDB)
		return nil, err
	}
	return r, nil
}

func closeDB(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}

// Start launches the orphan sweeper. Calling Start twice is a no-op.
func (r *Runtime) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	r.startSweeper()
	r.log.Info("runtime.start",
		slog.Duration("sweep_interval", r.sweepInterval),
		slog.String("mode", string(r.modes.Current())),
	)
	return nil
}

// Stop halts the sweeper and closes the database when the runtime owns
// one.
func (r *Runtime) Stop(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	r.stopSweeper()
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			return errors.New(errors.CodeStorage, "closing database", err)
		}
		r.db = nil
	}
	r.log.Info("runtime.stop")
	return nil
}

// CurrentMode returns the process-wide mode.
func (r *Runtime) CurrentMode() core.Mode {
	return r.modes.Current()
}

// AuditTail returns the n most recent audit records in append order.
func (r *Runtime) AuditTail(ctx context.Context, n int) ([]audit.Record, error) {
	return r.auditLog.Tail(ctx, n)
}

// AuditLen returns the number of audit records.
func (r *Runtime) AuditLen(ctx context.Context) (int, error) {
	return r.auditLog.Len(ctx)
}

// PendingApprovals lists unresolved approvals, oldest first.
func (r *Runtime) PendingApprovals(ctx context.Context) ([]mode.Approval, error) {
	return r.modes.Pending(ctx)
}

// GetApproval returns one approval by id, resolved or not.
func (r *Runtime) GetApproval(ctx context.Context, id string) (mode.Approval, error) {
	return r.modes.Get(ctx, id)
}

// Comms exposes the agent communication guard so front ends can manage
// the pair allowlist and temporary pair approvals.
func (r *Runtime) Comms() *guard.CommsGuard {
	return r.comms
}

// CreatePrimus creates the primary assistant and its persona document.
// A second call returns the existing actor.
func (r *Runtime) CreatePrimus(name string) (actor.Actor, error) {
	a, err := r.registry.CreatePrimus(name)
	if err != nil {
		return actor.Actor{}, err
	}
	if !r.personas.Exists(a.Persona.DocID) {
		if err := r.personas.Create(a.Persona.DocID, persona.DefaultTemplate(a.Name)); err != nil {
			return actor.Actor{}, err
		}
	}
	return a, nil
}

// SpawnAgent creates a specialized agent under Primus with its own
// persona document.
func (r *Runtime) SpawnAgent(parentID, name string) (actor.Actor, error) {
	a, err := r.registry.SpawnAgent(parentID, actor.WithName(name))
	if err != nil {
		return actor.Actor{}, err
	}
	if err := r.personas.Create(a.Persona.DocID, persona.DefaultTemplate(a.Name)); err != nil {
		return actor.Actor{}, err
	}
	return a, nil
}

// SpawnSubChat derives a subchat. Its persona stays an alias to the
// parent's document, so no new document is created.
func (r *Runtime) SpawnSubChat(parentID, name string) (actor.Actor, error) {
	return r.registry.SpawnSubChat(parentID, actor.WithName(name))
}

// RetireActor removes an actor and clears the state tied to it: session
// confirmations, open collaborations. Pending approvals it requested
// are left for the sweeper, which discards them without side effects.
func (r *Runtime) RetireActor(id string) error {
	if err := r.registry.Retire(id); err != nil {
		return err
	}
	r.enforcer.Confirmations().ResetActor(id)
	r.comms.EndCollaboration(id)
	return nil
}

// GetActor returns one actor snapshot.
func (r *Runtime) GetActor(id string) (actor.Actor, error) {
	return r.registry.Get(id)
}

// Actors lists all live actors.
func (r *Runtime) Actors() []actor.Actor {
	return r.registry.List()
}

// Persona returns the actor's persona document, following the subchat
// alias to the parent's document.
func (r *Runtime) Persona(actorID string) ([]byte, error) {
	act, err := r.registry.Get(actorID)
	if err != nil {
		return nil, err
	}
	return r.personas.Get(act.Persona.DocID)
}

func traceIDs(span trace.Span) (string, string) {
	sc := span.SpanContext()
	return sc.TraceID().String(), sc.SpanID().String()
}
