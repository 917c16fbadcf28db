package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	domainunits "github.com/yungbote/mechdata-backend/internal/domain/units"
	"github.com/yungbote/mechdata-backend/internal/http/response"
	"github.com/yungbote/mechdata-backend/internal/services"
)

type UnitHandler struct {
	units services.UnitService
}

func NewUnitHandler(units services.UnitService) *UnitHandler {
	return &UnitHandler{units: units}
}

func parseUnitID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, pipelineerr.New(pipelineerr.CodeValidation, "http.units", "invalid unit id", err)
	}
	return id, nil
}

// GET /units?class=&rated=&q=&limit=&offset=
func (h *UnitHandler) ListUnits(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50, 1, 500)
	if err != nil {
		response.Error(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0, 0, 1<<30)
	if err != nil {
		response.Error(c, err)
		return
	}
	rated, err := queryBool(c, "rated")
	if err != nil {
		response.Error(c, err)
		return
	}
	units, total, err := h.units.List(c.Request.Context(), services.UnitListFilter{
		UnitClass: c.Query("class"),
		Rated:     rated,
		Search:    c.Query("q"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"units": units, "total": total})
}

// GET /units/:id
func (h *UnitHandler) GetUnit(c *gin.Context) {
	id, err := parseUnitID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	unit, err := h.units.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"unit": unit})
}

// GET /units/by-mul-id/:mul_id
func (h *UnitHandler) GetUnitByMulID(c *gin.Context) {
	unit, err := h.units.GetByMulID(c.Request.Context(), c.Param("mul_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"unit": unit})
}

// GET /units/:id/bv?gunnery=&piloting=
func (h *UnitHandler) GetAdjustedBV(c *gin.Context) {
	id, err := parseUnitID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	gunnery, err := queryInt(c, "gunnery", domainunits.BaseGunnery, 0, 8)
	if err != nil {
		response.Error(c, err)
		return
	}
	piloting, err := queryInt(c, "piloting", domainunits.BasePiloting, 0, 8)
	if err != nil {
		response.Error(c, err)
		return
	}
	adj, err := h.units.AdjustedBattleValue(c.Request.Context(), id, gunnery, piloting)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"battle_value": adj})
}
