package goAccess

import (
	"context"

	internalaudit "github.com/vealkov/goAccess/internal/audit"
)

// auditDispatcher is the async observability tap. A nil dispatcher
// (audit tap disabled) is safe to emit into.
type auditDispatcher struct {
	inner *internalaudit.Dispatcher
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	inner := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    true,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
	if inner == nil {
		return nil
	}
	return &auditDispatcher{inner: inner}
}

func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	d.inner.Emit(ctx, event)
}

func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.inner.Close()
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.inner.Dropped()
}
