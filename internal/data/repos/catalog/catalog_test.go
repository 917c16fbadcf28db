package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/mechdata-backend/internal/data/repos/testutil"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

func TestWeaponUpsertKeepsExisting(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Background(context.Background())
	repo := NewWeaponRepo(db, testutil.Logger(t))

	first, err := repo.Upsert(dbc, []*types.Weapon{{Name: "Medium Laser", NormalizedName: "medium laser", Category: "energy"}})
	if err != nil || len(first) != 1 {
		t.Fatalf("Upsert: len=%d err=%v", len(first), err)
	}
	second, err := repo.Upsert(dbc, []*types.Weapon{
		{ID: uuid.New(), Name: "MEDIUM LASER", NormalizedName: "medium laser", Category: "other"},
		{Name: "AC/20", NormalizedName: "ac 20", Category: "ballistic"},
	})
	if err != nil || len(second) != 2 {
		t.Fatalf("Upsert again: len=%d err=%v", len(second), err)
	}
	for _, w := range second {
		if w.NormalizedName == "medium laser" && (w.ID != first[0].ID || w.Category != "energy") {
			t.Fatalf("Upsert replaced existing weapon: %+v", w)
		}
	}
	if n, err := repo.Count(dbc); err != nil || n != 2 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}
}

func TestWeaponAliasPutAndAddMissing(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Background(ctx)
	aliases := NewWeaponAliasRepo(db, testutil.Logger(t))

	ac20 := testutil.SeedWeapon(t, ctx, db, "AC/20")
	lbx := testutil.SeedWeapon(t, ctx, db, "LB 20-X AC")

	added, err := aliases.AddMissing(dbc, []*types.WeaponAlias{
		{Alias: "autocannon 20", WeaponID: ac20.ID, Source: types.AliasSourceGenerated},
		{Alias: "ac20", WeaponID: ac20.ID, Source: types.AliasSourceGenerated},
	})
	if err != nil || added != 2 {
		t.Fatalf("AddMissing: added=%d err=%v", added, err)
	}
	added, err = aliases.AddMissing(dbc, []*types.WeaponAlias{{Alias: "ac20", WeaponID: lbx.ID, Source: types.AliasSourceGenerated}})
	if err != nil || added != 0 {
		t.Fatalf("AddMissing existing: added=%d err=%v", added, err)
	}
	got, err := aliases.Get(dbc, "ac20")
	if err != nil || got == nil || got.WeaponID != ac20.ID {
		t.Fatalf("Get after AddMissing: %+v err=%v", got, err)
	}

	if err := aliases.Put(dbc, []*types.WeaponAlias{{Alias: "ac20", WeaponID: lbx.ID, Source: types.AliasSourceManual}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err = aliases.Get(dbc, "ac20")
	if err != nil || got == nil || got.WeaponID != lbx.ID || got.Source != types.AliasSourceManual {
		t.Fatalf("Get after Put: %+v err=%v", got, err)
	}
}
