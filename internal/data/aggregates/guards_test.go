package aggregates_test

import (
	"context"
	"testing"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	repotest "github.com/yungbote/mechdata-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/mechdata-backend/internal/domain/aggregates"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

func TestCASGuardSettleFencesStaleClaims(t *testing.T) {
	db := repotest.DB(t)
	ctx := context.Background()
	dbc := dbctx.Background(ctx)
	rs := repos.New(db, repotest.Logger(t))
	guard := aggregates.NewCASGuard(db)

	unit := repotest.SeedUnit(t, ctx, db, "Atlas", "AS7-D")
	repotest.SeedJob(t, ctx, db, unit)
	claim := claimOf(claimOne(t, rs, dbc, "w1"))

	stale := claim
	stale.Attempt++
	if err := guard.Settle(dbc, stale, map[string]any{"last_error": "late"}); !pipelineerr.IsCode(aggregates.MapError("settle", err), pipelineerr.CodeStoreConflict) {
		t.Fatalf("wrong attempt should conflict, got %v", err)
	}
	other := claim
	other.WorkerID = "w2"
	if err := guard.Settle(dbc, other, map[string]any{"last_error": "late"}); err == nil {
		t.Fatalf("foreign worker should conflict")
	}

	if err := guard.Settle(dbc, claim, map[string]any{"status": "done"}); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := guard.Settle(dbc, claim, map[string]any{"status": "done"}); err == nil {
		t.Fatalf("settling a finished job should conflict")
	}
}

func TestCASGuardWithoutDB(t *testing.T) {
	guard := aggregates.NewCASGuard(nil)
	err := guard.Settle(dbctx.Background(context.Background()), domainagg.JobClaim{}, nil)
	if !pipelineerr.IsCode(aggregates.MapError("settle", err), pipelineerr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
