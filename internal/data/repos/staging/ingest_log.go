package staging

import (
	"gorm.io/gorm"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

type IngestLogRepo interface {
	Create(dbc dbctx.Context, entry *types.IngestLog) error
	ListRecent(dbc dbctx.Context, limit int) ([]*types.IngestLog, error)
	CountByOutcome(dbc dbctx.Context, stage string) (map[string]int64, error)
}

type ingestLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestLogRepo(db *gorm.DB, baseLog *logger.Logger) IngestLogRepo {
	return &ingestLogRepo{db: db, log: baseLog.With("repo", "IngestLogRepo")}
}

func (r *ingestLogRepo) Create(dbc dbctx.Context, entry *types.IngestLog) error {
	return dbc.DB(r.db).Create(entry).Error
}

func (r *ingestLogRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.IngestLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.IngestLog
	if err := dbc.DB(r.db).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ingestLogRepo) CountByOutcome(dbc dbctx.Context, stage string) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		N       int64
	}
	q := dbc.DB(r.db).Model(&types.IngestLog{}).Select("outcome, COUNT(*) AS n")
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	if err := q.Group("outcome").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Outcome] = row.N
	}
	return out, nil
}
