package valuation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

// CommandLookup runs an external scraper and parses the JSON array it
// prints. The command is invoked as argv... --mech <name> [--variant v]
// [--types t]. Exit status 1 (no rows) and 2 (variant not found) mean the
// unit has no valuation.
type CommandLookup struct {
	argv []string
	log  *logger.Logger
}

func NewCommandLookup(argv []string, log *logger.Logger) *CommandLookup {
	if log == nil {
		log = logger.Nop()
	}
	return &CommandLookup{argv: append([]string(nil), argv...), log: log.With("component", "CommandLookup")}
}

func (c *CommandLookup) Backend() string { return "command" }

func (c *CommandLookup) Lookup(ctx context.Context, q Query) (Result, error) {
	const op = "valuation.command"
	if len(c.argv) == 0 {
		return Result{}, transient(op, "no valuation command configured", nil)
	}
	args := append([]string(nil), c.argv[1:]...)
	args = append(args, "--mech", q.Name)
	if q.Variant != "" {
		args = append(args, "--variant", q.Variant)
	}
	if q.TypeFilter != nil {
		args = append(args, "--types", strconv.Itoa(*q.TypeFilter))
	}

	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() != nil {
		return Result{}, transient(op, "lookup timed out", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			switch exitErr.ExitCode() {
			case 1, 2:
				return Result{}, notFound(op, fmt.Sprintf("no valuation for %s: %s", q, lastLine(stderr.String())))
			}
			return Result{}, transient(op, fmt.Sprintf("command exited %d: %s", exitErr.ExitCode(), lastLine(stderr.String())), err)
		}
		return Result{}, transient(op, "run command", err)
	}

	rows, ok := decodeRows(stdout.Bytes())
	if !ok {
		return Result{}, notFound(op, fmt.Sprintf("no rows for %s", q))
	}
	// The scraper has already applied the variant filter.
	res, ok := pickRating(rows, "")
	if !ok {
		return Result{}, notFound(op, fmt.Sprintf("no valuation for %s", q))
	}
	c.log.Debug("valuation lookup", "unit", q.String(), "bv", res.BattleValue, "pv", res.PointValue)
	return res, nil
}

// decodeRows parses stdout as a JSON array, tolerating log lines around it.
func decodeRows(out []byte) ([]map[string]any, bool) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, false
	}
	var rows []map[string]any
	if err := json.Unmarshal(out, &rows); err == nil {
		return rows, len(rows) > 0
	}
	start := bytes.IndexByte(out, '[')
	end := bytes.LastIndexByte(out, ']')
	if start < 0 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal(out[start:end+1], &rows); err != nil {
		return nil, false
	}
	return rows, len(rows) > 0
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
