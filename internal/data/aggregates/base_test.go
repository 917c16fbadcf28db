package aggregates

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

type directRunner struct{}

func (directRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}

type eventLog []WriteEvent

func (l *eventLog) OnWrite(ev WriteEvent) { *l = append(*l, ev) }

func write(t *testing.T, op string, fnErr error) (eventLog, error) {
	t.Helper()
	var events eventLog
	err := executeWrite(context.Background(), BaseDeps{Runner: directRunner{}, Hooks: &events}, op,
		func(dbctx.Context) error { return fnErr })
	if len(events) != 1 {
		t.Fatalf("expected one write event, got %d", len(events))
	}
	return events, err
}

func TestExecuteWriteEvents(t *testing.T) {
	cases := []struct {
		name     string
		op       string
		fnErr    error
		wantOp   string
		status   string
		conflict bool
	}{
		{"success", "finalization.promote", nil, "finalization.promote", "success", false},
		{"blank op", "  ", nil, "store.write", "success", false},
		{"pending keeps its code", "finalization.promote",
			pipelineerr.New(pipelineerr.CodePendingResolution, "promote", "2 slots are still unresolved", nil),
			"finalization.promote", string(pipelineerr.CodePendingResolution), false},
		{"claim lost", "valuation.complete", Conflictf("job is no longer in progress"),
			"valuation.complete", string(pipelineerr.CodeStoreConflict), true},
		{"sqlite unique", "finalization.promote", errors.New("UNIQUE constraint failed: finalized_unit.external_key"),
			"finalization.promote", string(pipelineerr.CodeStoreConflict), true},
		{"uncoded", "valuation.fail", context.Canceled, "valuation.fail", string(pipelineerr.CodeInternal), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := write(t, tc.op, tc.fnErr)
			if (err == nil) != (tc.fnErr == nil) {
				t.Fatalf("err = %v, fn returned %v", err, tc.fnErr)
			}
			ev := events[0]
			if ev.Op != tc.wantOp || ev.Status != tc.status || ev.Conflict != tc.conflict {
				t.Fatalf("unexpected event %+v", ev)
			}
		})
	}
}
