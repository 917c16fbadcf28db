package parser

import (
	"fmt"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

// Parse dispatches src to the grammar of class and stamps the class on the result.
func Parse(class UnitClass, src []byte) (*ParsedUnit, error) {
	if !class.Valid() {
		return nil, pipelineerr.New(pipelineerr.CodeValidation, "parser.parse", fmt.Sprintf("unknown unit class %q", class), nil)
	}
	var (
		u   *ParsedUnit
		err error
	)
	switch class.Format() {
	case FormatMTF:
		u, err = ParseMTF(src)
	default:
		u, err = ParseBLK(src, class)
	}
	if err != nil {
		return nil, err
	}
	u.Class = class
	return u, nil
}
