package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

const weaponCSV = `name,category,damage,heat,tonnage,crits
AC 20,ballistic,20,7,14,10
Laser Lg,energy,8,8,5,2
,energy,,,,
AC/20,ballistic,,,,
Gauss Rifle,ballistic,15,1,15,7
`

func TestCatalogImport(t *testing.T) {
	h := newHarness(t, nil)
	rep, err := h.catalog.Import(h.ctx, strings.NewReader(weaponCSV))
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Rows)
	assert.Equal(t, 3, rep.Weapons)
	assert.Equal(t, 2, rep.SkippedRows)
	assert.Positive(t, rep.AliasesAdded)

	w, err := h.repo.Weapons.GetByNormalizedName(dbctx.Background(h.ctx), "ac 20")
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NotNil(t, w.Damage)
	assert.Equal(t, 20, *w.Damage)
	require.NotNil(t, w.Tonnage)
	assert.Equal(t, 14.0, *w.Tonnage)

	a, err := h.repo.Aliases.Get(dbctx.Background(h.ctx), "autocannon 20")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, w.ID, a.WeaponID)
	assert.Equal(t, types.AliasSourceGenerated, a.Source)

	snap, err := h.catalog.Snapshot(h.ctx)
	require.NoError(t, err)
	m, ok := snap.Match("laser large")
	require.True(t, ok)
	assert.Equal(t, "laser lg", m.Weapon.NormalizedName)

	again, err := h.catalog.Import(h.ctx, strings.NewReader(weaponCSV))
	require.NoError(t, err)
	assert.Zero(t, again.AliasesAdded)
	assert.Equal(t, int64(3), count(t, h.db, &types.Weapon{}))
}

func TestCatalogImportRejectsMissingNameColumn(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.catalog.Import(h.ctx, strings.NewReader("category,damage\nenergy,5\n"))
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValidation))
}

func TestCatalogOverlay(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.catalog.Import(h.ctx, strings.NewReader(weaponCSV))
	require.NoError(t, err)

	n, err := h.catalog.ApplyOverlay(h.ctx, strings.NewReader("aliases:\n  Long Tom Gun: Gauss Rifle\n  Big Boom: AC/20\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err := h.repo.Aliases.Get(dbctx.Background(h.ctx), "long tom gun")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, types.AliasSourceImport, a.Source)

	_, err = h.catalog.ApplyOverlay(h.ctx, strings.NewReader("aliases:\n  thing: Not A Weapon\n"))
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeNotFound))
}

func TestCatalogAddAliasInvalidatesSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.catalog.Import(h.ctx, strings.NewReader(weaponCSV))
	require.NoError(t, err)

	snap, err := h.catalog.Snapshot(h.ctx)
	require.NoError(t, err)
	_, ok := snap.Match("rail gun")
	assert.False(t, ok)

	row, err := h.catalog.AddAlias(h.ctx, "Rail Gun", "gauss rifle")
	require.NoError(t, err)
	assert.Equal(t, "rail gun", row.Alias)
	assert.Equal(t, types.AliasSourceManual, row.Source)

	snap, err = h.catalog.Snapshot(h.ctx)
	require.NoError(t, err)
	m, ok := snap.Match("rail gun")
	require.True(t, ok)
	assert.Equal(t, types.MethodAlias, m.Method)

	_, err = h.catalog.AddAlias(h.ctx, "zap", "no such weapon")
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeNotFound))
	_, err = h.catalog.AddAlias(h.ctx, "", "gauss rifle")
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValidation))
}
