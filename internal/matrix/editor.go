package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/rbac"
)

// Phase is the lifecycle state of an Editor.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseSaving
	PhaseConfirmingDiscard
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseSaving:
		return "saving"
	case PhaseConfirmingDiscard:
		return "confirming_discard"
	default:
		return "error"
	}
}

// ErrInvalidTransition is returned when an operation is not allowed in the
// editor's current phase.
var ErrInvalidTransition = errors.New("matrix: invalid transition")

// Backend loads and saves one user's grants.
type Backend interface {
	Load(ctx context.Context, userID int64) (rbac.Resolution, error)
	Save(ctx context.Context, userID int64, sub rbac.Submission) (rbac.Resolution, error)
}

type operation int

const (
	opNone operation = iota
	opLoad
	opSave
)

// Editor drives one edit of a user's permission matrix.
type Editor struct {
	mu      sync.Mutex
	backend Backend
	catalog *catalog.Catalog
	userID  int64

	phase    Phase
	session  Session
	loaded   bool
	err      error
	failedOp operation
}

// NewEditor prepares an editor; call Load to fetch the matrix.
func NewEditor(backend Backend, cat *catalog.Catalog, userID int64) *Editor {
	return &Editor{backend: backend, catalog: cat, userID: userID, phase: PhaseLoading}
}

// Phase returns the current lifecycle phase.
func (e *Editor) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Err returns the failure that put the editor in PhaseError.
func (e *Editor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Session returns the staged selection. It is the zero Session before the
// first successful load.
func (e *Editor) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// HasChanges reports unsaved edits.
func (e *Editor) HasChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded && e.session.HasChanges()
}

// Load fetches the matrix and replaces the session. Pending edits block a
// reload; they must be saved or dropped through RequestDiscard first.
func (e *Editor) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.phase == PhaseSaving {
		e.mu.Unlock()
		return fmt.Errorf("%w: load while saving", ErrInvalidTransition)
	}
	if e.loaded && e.session.HasChanges() {
		phase := e.phase
		e.mu.Unlock()
		return fmt.Errorf("%w: load with pending edits from %s", ErrInvalidTransition, phase)
	}
	e.phase = PhaseLoading
	e.mu.Unlock()

	res, err := e.backend.Load(ctx, e.userID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.fail(opLoad, err)
		return err
	}
	e.session = FromResolution(e.catalog, res)
	e.loaded = true
	e.ready()
	return nil
}

// Save submits the staged selection. On failure the pending selection is
// kept so Retry can resubmit it.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	if e.phase != PhaseReady && !(e.phase == PhaseError && e.failedOp == opSave) {
		phase := e.phase
		e.mu.Unlock()
		return fmt.Errorf("%w: save from %s", ErrInvalidTransition, phase)
	}
	sub := e.session.Submission()
	e.phase = PhaseSaving
	e.mu.Unlock()

	res, err := e.backend.Save(ctx, e.userID, sub)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.fail(opSave, err)
		return err
	}
	e.session = FromResolution(e.catalog, res)
	e.ready()
	return nil
}

// Retry re-issues the operation that failed.
func (e *Editor) Retry(ctx context.Context) error {
	e.mu.Lock()
	op := e.failedOp
	phase := e.phase
	e.mu.Unlock()
	if phase != PhaseError {
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, phase)
	}
	if op == opSave {
		return e.Save(ctx)
	}
	return e.Load(ctx)
}

// Dismiss leaves PhaseError after a failed save, keeping the pending edits.
func (e *Editor) Dismiss() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseError || !e.loaded {
		return fmt.Errorf("%w: dismiss from %s", ErrInvalidTransition, e.phase)
	}
	e.ready()
	return nil
}

// RequestDiscard asks to drop pending edits. Without edits it is a no-op.
func (e *Editor) RequestDiscard() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseReady {
		return fmt.Errorf("%w: discard from %s", ErrInvalidTransition, e.phase)
	}
	if e.session.HasChanges() {
		e.phase = PhaseConfirmingDiscard
	}
	return nil
}

// ConfirmDiscard drops pending edits.
func (e *Editor) ConfirmDiscard() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseConfirmingDiscard {
		return fmt.Errorf("%w: confirm discard from %s", ErrInvalidTransition, e.phase)
	}
	e.session = e.session.Discard()
	e.ready()
	return nil
}

// CancelDiscard keeps pending edits.
func (e *Editor) CancelDiscard() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseConfirmingDiscard {
		return fmt.Errorf("%w: cancel discard from %s", ErrInvalidTransition, e.phase)
	}
	e.phase = PhaseReady
	return nil
}

// ToggleOne flips one permission.
func (e *Editor) ToggleOne(name string) error {
	return e.apply(func(s Session) Session { return s.ToggleOne(name) })
}

// ToggleModule bulk-toggles a row.
func (e *Editor) ToggleModule(moduleKey string) error {
	return e.apply(func(s Session) Session { return s.ToggleModule(moduleKey) })
}

// ToggleAction bulk-toggles a column.
func (e *Editor) ToggleAction(actionKey string) error {
	return e.apply(func(s Session) Session { return s.ToggleAction(actionKey) })
}

func (e *Editor) apply(fn func(Session) Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseReady {
		return fmt.Errorf("%w: edit from %s", ErrInvalidTransition, e.phase)
	}
	e.session = fn(e.session)
	return nil
}

func (e *Editor) fail(op operation, err error) {
	e.phase = PhaseError
	e.err = err
	e.failedOp = op
}

func (e *Editor) ready() {
	e.phase = PhaseReady
	e.err = nil
	e.failedOp = opNone
}
