package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/yungbote/mechdata-backend/internal/data/aggregates"
	"github.com/yungbote/mechdata-backend/internal/data/repos"
	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/domain/pipelineerr"
	"github.com/yungbote/mechdata-backend/internal/normalization"
	"github.com/yungbote/mechdata-backend/internal/pkg/dbctx"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

const snapshotKey = "catalog"

// CatalogReader hands out read-only catalog snapshots to the resolver.
type CatalogReader interface {
	Snapshot(ctx context.Context) (*CatalogSnapshot, error)
}

type CatalogService interface {
	CatalogReader
	// Import loads weapons from CSV (name,category,damage,heat,tonnage,crits)
	// and generates aliases for them.
	Import(ctx context.Context, r io.Reader) (CatalogImportReport, error)
	// ApplyOverlay applies a yaml alias file ("aliases: {alias: weapon}").
	ApplyOverlay(ctx context.Context, r io.Reader) (int, error)
	AddAlias(ctx context.Context, alias, weapon string) (*types.WeaponAlias, error)
	Invalidate()
}

type CatalogImportReport struct {
	Rows            int
	Weapons         int
	AliasesAdded    int64
	SkippedRows     int
	SkippedMessages []string
}

type catalogService struct {
	db      *gorm.DB
	log     *logger.Logger
	weapons repos.WeaponRepo
	aliases repos.WeaponAliasRepo

	cache *cache.Cache
	// loadMu collapses concurrent snapshot loads.
	loadMu sync.Mutex
}

func NewCatalogService(db *gorm.DB, baseLog *logger.Logger, weapons repos.WeaponRepo, aliases repos.WeaponAliasRepo, ttl time.Duration) CatalogService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &catalogService{
		db:      db,
		log:     baseLog.With("service", "CatalogService"),
		weapons: weapons,
		aliases: aliases,
		cache:   cache.New(ttl, 2*ttl),
	}
}

func (s *catalogService) Snapshot(ctx context.Context) (*CatalogSnapshot, error) {
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(*CatalogSnapshot), nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(*CatalogSnapshot), nil
	}
	dbc := dbctx.Context{Ctx: ctx}
	weapons, err := s.weapons.List(dbc)
	if err != nil {
		return nil, aggregates.MapError("catalog.snapshot", err)
	}
	aliases, err := s.aliases.List(dbc)
	if err != nil {
		return nil, aggregates.MapError("catalog.snapshot", err)
	}
	snap := NewCatalogSnapshot(weapons, aliases)
	s.cache.SetDefault(snapshotKey, snap)
	s.log.Debug("catalog snapshot loaded", "weapons", len(weapons), "aliases", len(aliases))
	return snap, nil
}

func (s *catalogService) Invalidate() {
	s.cache.Delete(snapshotKey)
}

func (s *catalogService) Import(ctx context.Context, r io.Reader) (CatalogImportReport, error) {
	const op = "catalog.import"
	var rep CatalogImportReport

	rows, skipped, err := readWeaponCSV(r)
	if err != nil {
		return rep, pipelineerr.New(pipelineerr.CodeValidation, op, err.Error(), err)
	}
	rep.Rows = len(rows) + len(skipped)
	rep.SkippedRows = len(skipped)
	rep.SkippedMessages = skipped

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		stored, err := s.weapons.Upsert(dbc, rows)
		if err != nil {
			return err
		}
		rep.Weapons = len(stored)

		taken := make(map[string]struct{}, len(stored))
		all, err := s.weapons.List(dbc)
		if err != nil {
			return err
		}
		for _, w := range all {
			taken[w.NormalizedName] = struct{}{}
		}
		var generated []*types.WeaponAlias
		seen := map[string]struct{}{}
		for _, w := range stored {
			for _, a := range normalization.GenerateAliases(w.Name) {
				if _, ok := taken[a]; ok {
					continue
				}
				// First weapon to claim a generated spelling keeps it.
				if _, ok := seen[a]; ok {
					continue
				}
				seen[a] = struct{}{}
				generated = append(generated, &types.WeaponAlias{Alias: a, WeaponID: w.ID, Source: types.AliasSourceGenerated})
			}
		}
		n, err := s.aliases.AddMissing(dbc, generated)
		rep.AliasesAdded = n
		return err
	})
	if err != nil {
		return rep, aggregates.MapError(op, err)
	}
	s.Invalidate()
	s.log.Info("catalog imported", "rows", rep.Rows, "weapons", rep.Weapons, "aliases_added", rep.AliasesAdded, "skipped", rep.SkippedRows)
	return rep, nil
}

// readWeaponCSV maps header names case-insensitively; only name is required.
func readWeaponCSV(r io.Reader) ([]*types.Weapon, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("empty catalog csv")
		}
		return nil, nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["name"]; !ok {
		return nil, nil, fmt.Errorf("catalog csv has no name column")
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []*types.Weapon
	var skipped []string
	seen := map[string]struct{}{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		name := field(rec, "name")
		norm := normalization.Normalize(name)
		if norm == "" {
			skipped = append(skipped, fmt.Sprintf("line %d: empty name", line))
			continue
		}
		if _, dup := seen[norm]; dup {
			skipped = append(skipped, fmt.Sprintf("line %d: duplicate weapon %q", line, name))
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, &types.Weapon{
			Name:           name,
			NormalizedName: norm,
			Category:       field(rec, "category"),
			Damage:         optInt(field(rec, "damage")),
			Heat:           optInt(field(rec, "heat")),
			Tonnage:        optFloat(field(rec, "tonnage")),
			Crits:          optInt(field(rec, "crits")),
		})
	}
	return out, skipped, nil
}

func optInt(s string) *int {
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	return nil
}

func optFloat(s string) *float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &f
	}
	return nil
}

type aliasOverlay struct {
	Aliases map[string]string `yaml:"aliases"`
}

func (s *catalogService) ApplyOverlay(ctx context.Context, r io.Reader) (int, error) {
	const op = "catalog.overlay"
	var ov aliasOverlay
	if err := yaml.NewDecoder(r).Decode(&ov); err != nil && !errors.Is(err, io.EOF) {
		return 0, pipelineerr.New(pipelineerr.CodeValidation, op, "invalid alias overlay", err)
	}
	keys := make([]string, 0, len(ov.Aliases))
	for k := range ov.Aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows []*types.WeaponAlias
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		for _, k := range keys {
			alias := normalization.Normalize(k)
			if alias == "" {
				continue
			}
			w, err := s.weapons.GetByNormalizedName(dbc, normalization.Normalize(ov.Aliases[k]))
			if err != nil {
				return err
			}
			if w == nil {
				return pipelineerr.New(pipelineerr.CodeNotFound, op, fmt.Sprintf("alias %q names unknown weapon %q", k, ov.Aliases[k]), nil)
			}
			rows = append(rows, &types.WeaponAlias{Alias: alias, WeaponID: w.ID, Source: types.AliasSourceImport})
		}
		return s.aliases.Put(dbc, rows)
	})
	if err != nil {
		return 0, aggregates.MapError(op, err)
	}
	s.Invalidate()
	return len(rows), nil
}

func (s *catalogService) AddAlias(ctx context.Context, alias, weapon string) (*types.WeaponAlias, error) {
	const op = "catalog.add_alias"
	normAlias := normalization.Normalize(alias)
	normWeapon := normalization.Normalize(weapon)
	if normAlias == "" || normWeapon == "" {
		return nil, pipelineerr.New(pipelineerr.CodeValidation, op, "alias and weapon are required", nil)
	}
	if normAlias == normWeapon {
		return nil, pipelineerr.New(pipelineerr.CodeValidation, op, "alias equals the weapon name", nil)
	}
	dbc := dbctx.Context{Ctx: ctx}
	w, err := s.weapons.GetByNormalizedName(dbc, normWeapon)
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if w == nil {
		return nil, pipelineerr.New(pipelineerr.CodeNotFound, op, fmt.Sprintf("unknown weapon %q", weapon), nil)
	}
	row := &types.WeaponAlias{Alias: normAlias, WeaponID: w.ID, Source: types.AliasSourceManual}
	if err := s.aliases.Put(dbc, []*types.WeaponAlias{row}); err != nil {
		return nil, aggregates.MapError(op, err)
	}
	s.Invalidate()
	s.log.Info("alias added", "alias", normAlias, "weapon", w.NormalizedName)
	return row, nil
}

// CatalogSnapshot is an immutable in-memory view of weapons and aliases.
type CatalogSnapshot struct {
	byNormalized map[string]*types.Weapon
	byID         map[uuid.UUID]*types.Weapon
	aliases      map[string]uuid.UUID
	candidates   []tokenCandidate
}

type tokenCandidate struct {
	weapon *types.Weapon
	tokens map[string]struct{}
	length int
}

func NewCatalogSnapshot(weapons []*types.Weapon, aliases []*types.WeaponAlias) *CatalogSnapshot {
	s := &CatalogSnapshot{
		byNormalized: make(map[string]*types.Weapon, len(weapons)),
		byID:         make(map[uuid.UUID]*types.Weapon, len(weapons)),
		aliases:      make(map[string]uuid.UUID, len(aliases)),
	}
	for _, w := range weapons {
		s.byNormalized[w.NormalizedName] = w
		s.byID[w.ID] = w
		toks := normalization.TokenSet(w.NormalizedName)
		if len(toks) == 0 {
			continue
		}
		s.candidates = append(s.candidates, tokenCandidate{
			weapon: w,
			tokens: toks,
			length: len([]rune(w.NormalizedName)),
		})
	}
	for _, a := range aliases {
		s.aliases[a.Alias] = a.WeaponID
	}
	return s
}

func (s *CatalogSnapshot) Weapons() int { return len(s.byID) }

// Match is the outcome of matching one normalized slot text.
type Match struct {
	Weapon *types.Weapon
	Method string
	// Tied lists every equally specific token-subset candidate when more
	// than one exists. Weapon is then the lexicographically smallest.
	Tied []*types.Weapon
}

func (m Match) Ambiguous() bool { return len(m.Tied) > 1 }

// Match resolves normalized text by exact name, then alias, then token
// subset. ok is false when nothing matches.
func (s *CatalogSnapshot) Match(normalized string) (Match, bool) {
	if normalized == "" {
		return Match{}, false
	}
	if w, ok := s.byNormalized[normalized]; ok {
		return Match{Weapon: w, Method: types.MethodExact}, true
	}
	if id, ok := s.aliases[normalized]; ok {
		if w, ok := s.byID[id]; ok {
			return Match{Weapon: w, Method: types.MethodAlias}, true
		}
	}
	raw := normalization.TokenSet(normalized)
	var best []tokenCandidate
	for _, c := range s.candidates {
		if !subset(c.tokens, raw) {
			continue
		}
		if len(best) == 0 {
			best = []tokenCandidate{c}
			continue
		}
		switch compareSpecificity(c, best[0]) {
		case 1:
			best = []tokenCandidate{c}
		case 0:
			best = append(best, c)
		}
	}
	if len(best) == 0 {
		return Match{}, false
	}
	sort.Slice(best, func(i, j int) bool {
		return best[i].weapon.NormalizedName < best[j].weapon.NormalizedName
	})
	m := Match{Weapon: best[0].weapon, Method: types.MethodToken}
	if len(best) > 1 {
		for _, c := range best {
			m.Tied = append(m.Tied, c.weapon)
		}
	}
	return m, true
}

// compareSpecificity orders by normalized length, then token count.
func compareSpecificity(a, b tokenCandidate) int {
	switch {
	case a.length > b.length:
		return 1
	case a.length < b.length:
		return -1
	case len(a.tokens) > len(b.tokens):
		return 1
	case len(a.tokens) < len(b.tokens):
		return -1
	}
	return 0
}

func subset(small, big map[string]struct{}) bool {
	if len(small) > len(big) {
		return false
	}
	for t := range small {
		if _, ok := big[t]; !ok {
			return false
		}
	}
	return true
}
