package aggregates

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

// BaseDeps is shared by every aggregate. Only DB is required.
type BaseDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Runner   TxRunner
	Hooks    Hooks
	CASGuard CASGuard
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return d
}

// executeWrite runs fn in one transaction and returns its error mapped to a
// pipelineerr code. Every call produces exactly one WriteEvent.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	deps = deps.withDefaults()
	if op = strings.TrimSpace(op); op == "" {
		op = "store.write"
	}
	ctx, span := otel.Tracer("mechdata/store").Start(ctx, op)
	defer span.End()

	start := time.Now()
	mapped := MapError(op, deps.Runner.InTx(ctx, fn))
	ev := WriteEvent{Op: op, Status: writeStatus(mapped), Duration: time.Since(start)}
	if pipelineerr.IsCode(mapped, pipelineerr.CodeStoreConflict) {
		ev.Conflict = true
		deps.Log.Debug("store write conflict", "op", op, "error", mapped)
	}
	if mapped != nil {
		span.SetStatus(codes.Error, ev.Status)
	}
	span.SetAttributes(attribute.String("store.status", ev.Status))
	deps.Hooks.OnWrite(ev)
	return mapped
}

func writeStatus(err error) string {
	if err == nil {
		return "success"
	}
	if code := pipelineerr.CodeOf(err); code != "" {
		return string(code)
	}
	return string(pipelineerr.CodeInternal)
}
