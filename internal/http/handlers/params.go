package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

// queryInt reads an integer query parameter, falling back to def when it is
// absent and rejecting values outside [min, max].
func queryInt(c *gin.Context, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, pipelineerr.New(pipelineerr.CodeValidation, "http.query",
			fmt.Sprintf("%s must be an integer in [%d, %d]", name, min, max), err)
	}
	return v, nil
}

func queryBool(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.CodeValidation, "http.query", name+" must be a boolean", err)
	}
	return &v, nil
}
