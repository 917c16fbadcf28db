// Package aggregates defines the write boundaries of the pipeline.
//
// Each contract names a set of rows that must change together. Callers see
// inputs and results only; persistence stays in internal/data/aggregates.
package aggregates
