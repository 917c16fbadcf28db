package staging

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type UnresolvedTokenRepo interface {
	// Increment adds n to the counter of token, creating it with sampleRaw
	// when absent. The first sample is kept.
	Increment(dbc dbctx.Context, token, sampleRaw string, n int64) error
	Get(dbc dbctx.Context, token string) (*types.UnresolvedToken, error)
	Top(dbc dbctx.Context, limit int) ([]*types.UnresolvedToken, error)
	Count(dbc dbctx.Context) (int64, error)
}

type unresolvedTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnresolvedTokenRepo(db *gorm.DB, baseLog *logger.Logger) UnresolvedTokenRepo {
	return &unresolvedTokenRepo{db: db, log: baseLog.With("repo", "UnresolvedTokenRepo")}
}

func (r *unresolvedTokenRepo) Increment(dbc dbctx.Context, token, sampleRaw string, n int64) error {
	if token == "" || n <= 0 {
		return nil
	}
	now := time.Now().UTC()
	row := &types.UnresolvedToken{Token: token, SampleRaw: sampleRaw, Count: n, LastSeenAt: now}
	return dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":        gorm.Expr("unresolved_token.count + ?", n),
			"last_seen_at": now,
		}),
	}).Create(row).Error
}

func (r *unresolvedTokenRepo) Get(dbc dbctx.Context, token string) (*types.UnresolvedToken, error) {
	var out []*types.UnresolvedToken
	if err := dbc.DB(r.db).Where("token = ?", token).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *unresolvedTokenRepo) Top(dbc dbctx.Context, limit int) ([]*types.UnresolvedToken, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.UnresolvedToken
	if err := dbc.DB(r.db).Order("count DESC, token ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *unresolvedTokenRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.UnresolvedToken{}).Count(&n).Error
	return n, err
}
