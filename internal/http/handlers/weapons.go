package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/http/response"
	"github.com/yungbote/mechdata-backend/internal/services"
)

type WeaponHandler struct {
	weapons services.WeaponService
}

func NewWeaponHandler(weapons services.WeaponService) *WeaponHandler {
	return &WeaponHandler{weapons: weapons}
}

func parseWeaponID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, pipelineerr.New(pipelineerr.CodeValidation, "http.weapons", "invalid weapon id", err)
	}
	return id, nil
}

// GET /weapons?q=&category=&limit=&offset=
func (h *WeaponHandler) ListWeapons(c *gin.Context) {
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
	weapons, total, err := h.weapons.List(c.Request.Context(), services.WeaponListFilter{
		Search:   c.Query("q"),
		Category: c.Query("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"weapons": weapons, "total": total})
}

// GET /weapons/:id
func (h *WeaponHandler) GetWeapon(c *gin.Context) {
	id, err := parseWeaponID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	w, err := h.weapons.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"weapon": w})
}

// GET /weapons/:id/units?limit=&offset=
func (h *WeaponHandler) ListMountingUnits(c *gin.Context) {
	id, err := parseWeaponID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
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
	units, total, err := h.weapons.MountedOn(c.Request.Context(), id, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"units": units, "total": total})
}
