package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

func TestInjectedTxRunnerCounters(t *testing.T) {
	bodyErr := errors.New("slot insert failed")
	commitErr := errors.New("connection reset")
	ok := func(dbctx.Context) error { return nil }
	fail := func(dbctx.Context) error { return bodyErr }

	cases := []struct {
		name     string
		runner   *InjectedTxRunner
		bodies   []func(dbctx.Context) error
		wantErrs []error
		commits  int
		rollback int
	}{
		{"commit", &InjectedTxRunner{}, []func(dbctx.Context) error{ok}, []error{nil}, 1, 0},
		{"body error rolls back", &InjectedTxRunner{}, []func(dbctx.Context) error{fail}, []error{bodyErr}, 0, 1},
		{"commit failure once", &InjectedTxRunner{FailCommit: commitErr, FailTimes: 1},
			[]func(dbctx.Context) error{ok, ok}, []error{commitErr, nil}, 1, 1},
		{"begin failure", &InjectedTxRunner{FailBegin: commitErr},
			[]func(dbctx.Context) error{ok}, []error{commitErr}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i, body := range tc.bodies {
				err := tc.runner.InTx(context.Background(), body)
				if want := tc.wantErrs[i]; (want == nil && err != nil) || (want != nil && !errors.Is(err, want)) {
					t.Fatalf("tx %d: err = %v, want %v", i, err, want)
				}
			}
			r := tc.runner
			if r.BeginCalls != len(tc.bodies) || r.CommitCalls != tc.commits || r.RollbackCalls != tc.rollback {
				t.Fatalf("begin=%d commit=%d rollback=%d", r.BeginCalls, r.CommitCalls, r.RollbackCalls)
			}
		})
	}
}
