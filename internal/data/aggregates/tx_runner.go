package aggregates

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
)

// lockTimeout bounds row lock waits on postgres. A timeout surfaces as
// 55P03, which MapError treats as a conflict.
const lockTimeout = "5s"

// TxRunner owns the transaction boundary of an aggregate write.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

// TxFunc adapts a plain function to TxRunner.
type TxFunc func(ctx context.Context, fn func(dbc dbctx.Context) error) error

func (f TxFunc) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return f(ctx, fn)
}

// NewGormTxRunner runs each write in its own gorm transaction.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return TxFunc(func(ctx context.Context, fn func(dbc dbctx.Context) error) error {
		if db == nil {
			return pipelineerr.New(pipelineerr.CodeInternal, "store.tx", "no database configured", nil)
		}
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if tx.Dialector.Name() == "postgres" {
				if err := tx.Exec("SET LOCAL lock_timeout = '" + lockTimeout + "'").Error; err != nil {
					return err
				}
			}
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
	})
}
