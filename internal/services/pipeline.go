package services

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/parser"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type PipelineOptions struct {
	// Class forces the unit class; empty infers it per file.
	Class  parser.UnitClass
	Strict bool
	// Finalize promotes records that resolve completely.
	Finalize bool
	Mode     string
}

// FileResult is one file's trip through the pipeline. Code and Reason hold
// the first stage failure that stopped the file.
type FileResult struct {
	Path     string            `json:"path"`
	Ingest   IngestOutcome     `json:"ingest"`
	Resolve  *RecordResolution `json:"resolve,omitempty"`
	Finalize *FinalizeOutcome  `json:"finalize,omitempty"`
	Code     pipelineerr.Code  `json:"code,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

func (fr *FileResult) fail(err error) {
	fr.Code = pipelineerr.CodeOf(err)
	if fr.Code == "" {
		fr.Code = pipelineerr.CodeInternal
	}
	fr.Reason = err.Error()
}

type PipelineReport struct {
	Files      []FileResult `json:"files"`
	Staged     int          `json:"staged"`
	Unchanged  int          `json:"unchanged"`
	Failed     int          `json:"failed"`
	Finalized  int          `json:"finalized"`
	Pending    int          `json:"pending"`
	Unresolved int          `json:"unresolved_slots"`
	Errored    int          `json:"errored"`
}

// PipelineRunner drives ingest, resolve and finalize for a set of files.
type PipelineRunner interface {
	RunFiles(ctx context.Context, paths []string, opts PipelineOptions) (PipelineReport, error)
}

type pipelineRunner struct {
	log         *logger.Logger
	ingest      IngestService
	resolver    ResolverService
	finalizer   FinalizerService
	parallelism int
}

func NewPipelineRunner(baseLog *logger.Logger, ingest IngestService, resolver ResolverService, finalizer FinalizerService, parallelism int) PipelineRunner {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &pipelineRunner{
		log:         baseLog.With("service", "PipelineRunner"),
		ingest:      ingest,
		resolver:    resolver,
		finalizer:   finalizer,
		parallelism: parallelism,
	}
}

func (r *pipelineRunner) RunFiles(ctx context.Context, paths []string, opts PipelineOptions) (PipelineReport, error) {
	var rep PipelineReport
	files, err := ExpandUnitFiles(paths)
	if err != nil {
		return rep, err
	}
	results := make([]FileResult, len(files))

	// Failures stay with their file; only cancellation ends the run early.
	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = FileResult{Path: path}
				results[i].fail(pipelineerr.Wrap(pipelineerr.CodeInternal, "pipeline.run_files", err))
				return nil
			}
			results[i] = r.runFile(ctx, path, opts)
			return nil
		})
	}
	_ = g.Wait()

	rep.Files = results
	for _, fr := range results {
		if fr.Code != "" {
			rep.Errored++
		}
		switch fr.Ingest.Status {
		case IngestStaged:
			rep.Staged++
		case IngestUnchanged:
			rep.Unchanged++
		case IngestFailed:
			rep.Failed++
		}
		if fr.Resolve != nil {
			rep.Unresolved += fr.Resolve.Unresolved + fr.Resolve.Ambiguous
		}
		if fr.Finalize != nil {
			switch fr.Finalize.Status {
			case FinalizeDone:
				rep.Finalized++
			case FinalizePending:
				rep.Pending++
			}
		}
	}
	r.log.Info("pipeline finished",
		"files", len(files),
		"staged", rep.Staged,
		"unchanged", rep.Unchanged,
		"failed", rep.Failed,
		"finalized", rep.Finalized,
		"pending", rep.Pending,
		"errored", rep.Errored,
	)
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// runFile ingests, resolves and finalizes one file. A failing stage is
// recorded on the result and skips the stages after it.
func (r *pipelineRunner) runFile(ctx context.Context, path string, opts PipelineOptions) FileResult {
	res := FileResult{Path: path}
	out, err := r.ingest.Ingest(ctx, IngestRequest{Path: path, Class: opts.Class})
	res.Ingest = out
	if err != nil {
		if !isStageError(err) {
			res.fail(err)
			r.log.Warn("ingest failed", "path", path, "code", res.Code, "error", err)
		}
		return res
	}

	rr, err := r.resolver.ResolvePending(ctx, ResolveOptions{RecordIDs: []uuid.UUID{out.RecordID}, Strict: opts.Strict})
	if err != nil {
		res.fail(err)
		r.log.Warn("resolve failed", "path", path, "code", res.Code, "error", err)
		return res
	}
	if len(rr.Records) > 0 {
		rec := rr.Records[0]
		res.Resolve = &rec
		if rec.Failed() {
			res.Code, res.Reason = rec.Code, rec.Reason
			return res
		}
	}
	if !opts.Finalize {
		return res
	}

	fo, err := r.finalizer.Finalize(ctx, out.RecordID, FinalizeOptions{Mode: opts.Mode})
	res.Finalize = &fo
	switch {
	case err == nil:
	case pipelineerr.IsCode(err, pipelineerr.CodePendingResolution):
		r.log.Debug("record awaits resolution", "path", path, "reason", fo.Reason)
	case !isStageError(err):
		res.fail(err)
		r.log.Warn("finalize failed", "path", path, "code", res.Code, "error", err)
	}
	return res
}

// ExpandUnitFiles replaces directories with the .mtf and .blk files under
// them. Explicit file arguments are kept whatever their extension.
func ExpandUnitFiles(paths []string) ([]string, error) {
	var out []string
	seen := map[string]struct{}{}
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, pipelineerr.New(pipelineerr.CodeValidation, "pipeline.expand", err.Error(), err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".mtf", ".blk":
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, pipelineerr.New(pipelineerr.CodeValidation, "pipeline.expand", err.Error(), err)
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}
