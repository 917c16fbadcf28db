package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repotest "github.com/yungbote/mechdata-backend/internal/data/repos/testutil"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

func TestAdjustedBattleValueForUnit(t *testing.T) {
	h := newHarness(t, nil)
	unit := repotest.SeedUnit(t, h.ctx, h.db, "Atlas", "AS7-D")

	_, err := h.units.AdjustedBattleValue(h.ctx, unit.ID, 4, 5)
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeNotFound), "unrated unit: %v", err)

	require.NoError(t, h.db.Model(&types.FinalizedUnit{}).Where("id = ?", unit.ID).
		Updates(map[string]any{"battle_value": 1000, "point_value": 30}).Error)

	adj, err := h.units.AdjustedBattleValue(h.ctx, unit.ID, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 1000, adj.BaseBV)
	assert.Equal(t, 1320, adj.AdjustedBV)
	assert.InDelta(t, 1.32, adj.Multiplier, 1e-9)
	require.NotNil(t, adj.PointValue)
	assert.Equal(t, 30, *adj.PointValue)

	_, err = h.units.AdjustedBattleValue(h.ctx, unit.ID, 9, 4)
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeValidation))

	_, err = h.units.AdjustedBattleValue(h.ctx, uuid.New(), 4, 5)
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeNotFound))
}

func TestUnitGetAndList(t *testing.T) {
	h := newHarness(t, nil)
	repotest.SeedUnit(t, h.ctx, h.db, "Atlas", "AS7-D")
	b := repotest.SeedUnit(t, h.ctx, h.db, "Locust", "LCT-1V")

	got, err := h.units.Get(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Locust", got.Name)

	_, err = h.units.Get(h.ctx, uuid.New())
	assert.True(t, pipelineerr.IsCode(err, pipelineerr.CodeNotFound))

	list, total, err := h.units.List(h.ctx, UnitListFilter{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)
}
