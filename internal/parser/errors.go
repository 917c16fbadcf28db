package parser

import (
	"fmt"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
)

// SyntaxError locates a structural problem in a source file. Line is 1-based;
// 0 means the problem concerns the file as a whole.
type SyntaxError struct {
	Format Format
	Line   int
	Reason string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", e.Format, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Reason)
}

func malformed(format Format, line int, reason string, args ...any) error {
	se := &SyntaxError{Format: format, Line: line, Reason: fmt.Sprintf(reason, args...)}
	return pipelineerr.New(pipelineerr.CodeMalformedSource, "parser."+string(format), se.Error(), se)
}
