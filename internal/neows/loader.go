package neows

import (
	"context"
	"time"

	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/kb"
	"github.com/signalsfoundry/impact-simulator/model"
)

// Source is the subset of Client the Loader needs.
type Source interface {
	Browse(ctx context.Context, page, size int) (Page, error)
	Feed(ctx context.Context, start, end time.Time) ([]model.NEORecord, error)
}

// LoadResult summarises one Load call.
type LoadResult struct {
	Page     int  `json:"page"`
	Added    int  `json:"added"`
	Total    int  `json:"total"`
	HasNext  bool `json:"hasNext"`
	Fallback bool `json:"fallback"`
}

// Loader fills a knowledge base from NeoWs, one browse page at a time, and
// makes sure the headline impactor is present. API failures degrade to the
// fixed fallback catalog and are only logged.
type Loader struct {
	src      Source
	store    *kb.KnowledgeBase
	log      logging.Logger
	pageSize int
	now      func() time.Time
}

// NewLoader wires src into store.
func NewLoader(src Source, store *kb.KnowledgeBase, log logging.Logger, pageSize int) *Loader {
	if log == nil {
		log = logging.Noop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{src: src, store: store, log: log, pageSize: pageSize, now: time.Now}
}

// Load fetches a browse page into the store.
func (l *Loader) Load(ctx context.Context, page int) LoadResult {
	res := LoadResult{Page: page}

	p, err := l.src.Browse(ctx, page, l.pageSize)
	if err != nil {
		l.log.Warn(ctx, "neows browse failed, using fallback catalog",
			logging.Int("page", page),
			logging.Err(err),
		)
		res.Added = l.store.UpsertObjects(FallbackCatalog())
		res.Total = l.store.Len()
		res.Fallback = true
		return res
	}

	res.Added = l.store.UpsertObjects(p.Objects)
	res.HasNext = p.HasNext
	res.Added += l.ensureImpactor(ctx)
	res.Total = l.store.Len()

	l.log.Info(ctx, "neows page loaded",
		logging.Int("page", page),
		logging.Int("added", res.Added),
		logging.Int("total", res.Total),
	)
	return res
}

func (l *Loader) ensureImpactor(ctx context.Context) int {
	if HasImpactor(l.store.ListObjects()) {
		return 0
	}

	start := l.now().UTC()
	records, err := l.src.Feed(ctx, start, start.AddDate(0, 0, 7))
	if err != nil {
		l.log.Warn(ctx, "neows feed failed, using synthetic impactor", logging.Err(err))
	}
	impactor, found := SelectImpactor(records)
	if !found {
		l.log.Info(ctx, "no hazardous object in feed, using synthetic impactor")
	}
	return l.store.UpsertObjects([]model.NEORecord{impactor})
}
