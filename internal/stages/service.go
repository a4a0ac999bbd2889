package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/fallback"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	SourceCache       = "cache"
	SourceDirectQuery = "direct_query"
	SourceStaleCache  = "stale_cache"
	SourceEmpty       = "empty"
	SourceAggregate   = "aggregate"
	SourceClientTally = "client_tally"

	defaultCacheTTL = 60 * time.Second
	writeBackSource = "stage:write_back"
)

// Criteria selects the leads a surface renders.
type Criteria struct {
	TenantID                 uuid.UUID
	IncludeClosedStatus      bool
	IncludeRemovedFromFunnel bool
	IncludeDeleted           bool
	// Stages defaults to DisplayStages.
	Stages  []Stage
	AgentID *uuid.UUID
}

// DefaultCriteria is what both surfaces use when nothing is filtered.
func DefaultCriteria(tenantID uuid.UUID) Criteria {
	return Criteria{TenantID: tenantID}
}

// FunnelCriteria is the criteria the funnel board loads with.
func FunnelCriteria(tenantID uuid.UUID) Criteria { return DefaultCriteria(tenantID) }

// ChatCriteria is the criteria the chat inbox loads with.
func ChatCriteria(tenantID uuid.UUID) Criteria { return DefaultCriteria(tenantID) }

func (c Criteria) stages() []Stage {
	if len(c.Stages) == 0 {
		return DisplayStages
	}
	out := make([]Stage, 0, len(c.Stages))
	for _, s := range c.Stages {
		out = append(out, Normalize(s))
	}
	sort.Strings(out)
	return out
}

func (c Criteria) signature() string {
	agent := "*"
	if c.AgentID != nil {
		agent = c.AgentID.String()
	}
	return fmt.Sprintf("%s|closed=%t|removed=%t|deleted=%t|agent=%s|stages=%s",
		c.TenantID, c.IncludeClosedStatus, c.IncludeRemovedFromFunnel, c.IncludeDeleted,
		agent, strings.Join(c.stages(), ","))
}

// LeadList is a filtered lead list and the strategy that produced it.
type LeadList struct {
	Leads  []Lead `json:"leads"`
	Source string `json:"source"`
}

// CountOptions narrows CountsByStage.
type CountOptions struct {
	IncludeClosedStatus      bool
	IncludeRemovedFromFunnel bool
	IncludeDeleted           bool
	AgentID                  *uuid.UUID
}

// StageCounts holds one count per funnel column.
type StageCounts struct {
	Counts map[Stage]int `json:"counts"`
	Total  int           `json:"total"`
	Source string        `json:"source"`
}

// ConsistencyReport compares the funnel and chat views of one tenant.
type ConsistencyReport struct {
	IsConsistent   bool        `json:"isConsistent"`
	FunnelCount    int         `json:"funnelCount"`
	ChatCount      int         `json:"chatCount"`
	OnlyInFunnel   []uuid.UUID `json:"onlyInFunnel"`
	OnlyInChat     []uuid.UUID `json:"onlyInChat"`
	UnmappedStages []string    `json:"unmappedStages"`
}

// Service is the single rule set both surfaces list and count leads with.
type Service struct {
	store     LeadStore
	counter   StageCounter
	bus       events.Bus
	clock     clockwork.Clock
	log       *logger.Logger
	writeBack bool

	lists  *ttlCache[[]Lead]
	counts *ttlCache[StageCounts]
	group  singleflight.Group
}

// Options configure a Service. Counter and Bus may be nil.
type Options struct {
	Counter   StageCounter
	Bus       events.Bus
	Clock     clockwork.Clock
	CacheTTL  time.Duration
	WriteBack bool
}

func NewService(store LeadStore, opts Options, log *logger.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Service{
		store:     store,
		counter:   opts.Counter,
		bus:       opts.Bus,
		clock:     opts.Clock,
		log:       log,
		writeBack: opts.WriteBack,
		lists:     newTTLCache[[]Lead](opts.Clock, opts.CacheTTL),
		counts:    newTTLCache[StageCounts](opts.Clock, opts.CacheTTL),
	}
}

// ListLeads returns the leads matching criteria. Identical criteria within
// the cache window are answered from the cache. When the lead store fails
// the last known list is served, and failing that an empty one.
func (s *Service) ListLeads(ctx context.Context, criteria Criteria) (LeadList, error) {
	if criteria.TenantID == uuid.Nil {
		return LeadList{}, apperr.Validation("tenant is required")
	}
	key := criteria.signature()
	if leads, ok := s.lists.fresh(key); ok {
		return LeadList{Leads: leads, Source: SourceCache}, nil
	}

	outcome, _ := fallback.Run(ctx, "stage_list",
		fallback.Strategy[[]Lead]{
			Name: SourceDirectQuery,
			Run: func(ctx context.Context) ([]Lead, error) {
				return s.query(ctx, criteria)
			},
		},
		fallback.Strategy[[]Lead]{
			Name: SourceStaleCache,
			Run: func(context.Context) ([]Lead, error) {
				if leads, ok := s.lists.stale(key); ok {
					return leads, nil
				}
				return nil, fallback.ErrNext
			},
		},
		fallback.Strategy[[]Lead]{
			Name: SourceEmpty,
			Run: func(context.Context) ([]Lead, error) {
				return []Lead{}, nil
			},
		},
	)
	s.logAttempts("lead_store", "list", outcome.Attempts)
	return LeadList{Leads: outcome.Value, Source: outcome.Strategy}, nil
}

// CountsByStage counts leads per funnel column. The server-side aggregate
// is preferred; when it fails the leads are listed and tallied with the
// same rules, and failing that the last known counts are served.
func (s *Service) CountsByStage(ctx context.Context, tenantID uuid.UUID, opts CountOptions) (StageCounts, error) {
	if tenantID == uuid.Nil {
		return StageCounts{}, apperr.Validation("tenant is required")
	}
	criteria := Criteria{
		TenantID:                 tenantID,
		IncludeClosedStatus:      opts.IncludeClosedStatus,
		IncludeRemovedFromFunnel: opts.IncludeRemovedFromFunnel,
		IncludeDeleted:           opts.IncludeDeleted,
		AgentID:                  opts.AgentID,
	}
	key := criteria.signature()

	outcome, err := fallback.Run(ctx, "stage_counts",
		fallback.Strategy[StageCounts]{
			Name: SourceAggregate,
			Run: func(ctx context.Context) (StageCounts, error) {
				if s.counter == nil {
					return StageCounts{}, fallback.ErrNext
				}
				raw, err := s.counter.CountLeadsByRawStage(ctx, CountQuery{
					TenantID:                 tenantID,
					IncludeClosedStatus:      opts.IncludeClosedStatus,
					IncludeRemovedFromFunnel: opts.IncludeRemovedFromFunnel,
					IncludeDeleted:           opts.IncludeDeleted,
					AgentID:                  opts.AgentID,
				})
				if err != nil {
					return StageCounts{}, err
				}
				return s.tallyRaw(raw), nil
			},
		},
		fallback.Strategy[StageCounts]{
			Name: SourceClientTally,
			Run: func(ctx context.Context) (StageCounts, error) {
				leads, err := s.cachedQuery(ctx, criteria, key)
				if err != nil {
					return StageCounts{}, err
				}
				return tallyLeads(leads), nil
			},
		},
		fallback.Strategy[StageCounts]{
			Name: SourceStaleCache,
			Run: func(context.Context) (StageCounts, error) {
				if counts, ok := s.counts.stale(key); ok {
					return counts, nil
				}
				return StageCounts{}, fallback.ErrNext
			},
		},
	)
	s.logAttempts("stage_counter", "count", outcome.Attempts)
	if err != nil {
		s.log.Error("stage counts unavailable, reporting zero", "tenant_id", tenantID.String(), "error", err)
		empty := newStageCounts()
		empty.Source = SourceEmpty
		return empty, nil
	}

	counts := outcome.Value
	counts.Source = outcome.Strategy
	if outcome.Strategy != SourceStaleCache {
		s.counts.put(key, tenantID, counts)
	}
	return counts, nil
}

// ValidateConsistency diffs the lead ids the funnel renders against a
// fresh read with the chat inbox criteria.
func (s *Service) ValidateConsistency(ctx context.Context, tenantID uuid.UUID) (ConsistencyReport, error) {
	funnel, err := s.ListLeads(ctx, FunnelCriteria(tenantID))
	if err != nil {
		return ConsistencyReport{}, err
	}
	chat, err := s.query(ctx, ChatCriteria(tenantID))
	if err != nil {
		return ConsistencyReport{}, apperr.Unavailable("lead store unavailable", err).WithOp("stages.ValidateConsistency")
	}

	funnelIDs := idSet(funnel.Leads)
	chatIDs := idSet(chat)
	report := ConsistencyReport{
		FunnelCount:    len(funnelIDs),
		ChatCount:      len(chatIDs),
		OnlyInFunnel:   difference(funnelIDs, chatIDs),
		OnlyInChat:     difference(chatIDs, funnelIDs),
		UnmappedStages: unmappedStages(chat),
	}
	report.IsConsistent = len(report.OnlyInFunnel) == 0 && len(report.OnlyInChat) == 0
	if !report.IsConsistent {
		s.log.Warn("funnel and chat views disagree",
			"tenant_id", tenantID.String(),
			"only_in_funnel", len(report.OnlyInFunnel),
			"only_in_chat", len(report.OnlyInChat),
			"funnel_source", funnel.Source)
	}
	return report, nil
}

// UpdateLeadStage writes a canonical stage to the lead, drops the tenant's
// cached lists and announces the change.
func (s *Service) UpdateLeadStage(ctx context.Context, tenantID, leadID uuid.UUID, rawStage, source string) error {
	stage := Normalize(rawStage)
	if !IsCanonical(stage) {
		return apperr.Validation(fmt.Sprintf("unknown stage %q", rawStage))
	}

	lead, err := s.store.GetLead(ctx, tenantID, leadID)
	if err != nil {
		return err
	}
	if lead.Stage == stage {
		return nil
	}
	if err := s.store.UpdateLeadStage(ctx, tenantID, leadID, stage); err != nil {
		return err
	}
	s.Invalidate(tenantID)

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadStageChanged{
			BaseEvent:     events.NewBaseEvent(s.clock.Now()),
			TenantID:      tenantID,
			LeadID:        leadID,
			Name:          lead.Name,
			PreviousStage: Normalize(lead.Stage),
			Stage:         stage,
			Source:        source,
		})
	}
	return nil
}

// Invalidate expires every cached list and count of a tenant.
func (s *Service) Invalidate(tenantID uuid.UUID) {
	s.lists.invalidate(tenantID)
	s.counts.invalidate(tenantID)
}

// InvalidateAll expires every cached list and count.
func (s *Service) InvalidateAll() {
	s.lists.invalidateAll()
	s.counts.invalidateAll()
}

// cachedQuery answers from a fresh cache entry or runs the query.
func (s *Service) cachedQuery(ctx context.Context, criteria Criteria, key string) ([]Lead, error) {
	if leads, ok := s.lists.fresh(key); ok {
		return leads, nil
	}
	return s.query(ctx, criteria)
}

// query reads the lead store once per signature at a time, filters the
// result and caches it.
func (s *Service) query(ctx context.Context, criteria Criteria) ([]Lead, error) {
	key := criteria.signature()
	v, err, _ := s.group.Do(key, func() (any, error) {
		leads, err := s.store.ListLeads(ctx, LeadQuery{
			TenantID:            criteria.TenantID,
			IncludeClosedStatus: criteria.IncludeClosedStatus,
			AgentID:             criteria.AgentID,
		})
		if err != nil {
			return nil, err
		}
		filtered := s.filter(ctx, criteria, leads)
		s.lists.put(key, criteria.TenantID, filtered)
		return filtered, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Lead), nil
}

// filter applies, in order: tenant, status, agent, stage, removed and
// deleted rules. The store already scoped tenant, status and agent; they
// are checked again so a lenient store cannot widen the result.
func (s *Service) filter(ctx context.Context, criteria Criteria, leads []Lead) []Lead {
	wanted := criteria.stages()
	out := make([]Lead, 0, len(leads))
	for _, lead := range leads {
		if lead.TenantID != criteria.TenantID {
			continue
		}
		if !criteria.IncludeClosedStatus && strings.EqualFold(lead.Status, StatusClosed) {
			continue
		}
		if criteria.AgentID != nil && (lead.AssignedAgentID == nil || *lead.AssignedAgentID != *criteria.AgentID) {
			continue
		}

		stage, known := Resolve(lead.Stage)
		if !known {
			s.log.StageAnomaly(lead.ID.String(), lead.Stage, stage)
			s.correctStage(ctx, lead, stage)
		}
		if !matchesStages(stage, wanted) {
			continue
		}
		if !criteria.IncludeRemovedFromFunnel && lead.RemovedFromFunnel() {
			continue
		}
		if !criteria.IncludeDeleted && lead.Deleted() {
			continue
		}

		if lead.Stage != stage {
			lead.RawStage = lead.Stage
			lead.Stage = stage
		}
		out = append(out, lead)
	}
	return out
}

func (s *Service) correctStage(ctx context.Context, lead Lead, stage Stage) {
	if !s.writeBack {
		return
	}
	if err := s.store.UpdateLeadStage(ctx, lead.TenantID, lead.ID, stage); err != nil {
		s.log.SideEffectFailed("stage_write_back", err, "lead_id", lead.ID.String())
		return
	}
	s.log.Info("anomalous stage corrected", "lead_id", lead.ID.String(), "raw_stage", lead.Stage, "stage", stage, "source", writeBackSource)
}

func (s *Service) tallyRaw(raw map[string]int) StageCounts {
	counts := newStageCounts()
	for label, n := range raw {
		stage, known := Resolve(label)
		if !known {
			s.log.StageAnomaly("", label, stage)
		}
		if !matchesStages(stage, DisplayStages) {
			continue
		}
		counts.Counts[Column(stage)] += n
		counts.Total += n
	}
	return counts
}

func tallyLeads(leads []Lead) StageCounts {
	counts := newStageCounts()
	for _, lead := range leads {
		stage, _ := Resolve(lead.Stage)
		if !matchesStages(stage, DisplayStages) {
			continue
		}
		counts.Counts[Column(stage)]++
		counts.Total++
	}
	return counts
}

func newStageCounts() StageCounts {
	counts := StageCounts{Counts: make(map[Stage]int, len(DisplayStages))}
	for _, stage := range DisplayStages {
		counts.Counts[stage] = 0
	}
	return counts
}

func (s *Service) logAttempts(collaborator, op string, attempts []fallback.Attempt) {
	for _, a := range attempts {
		if errors.Is(a.Err, fallback.ErrNext) {
			continue
		}
		s.log.CollaboratorError(collaborator, op+":"+a.Strategy, a.Err)
	}
}

func idSet(leads []Lead) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(leads))
	for _, l := range leads {
		out[l.ID] = struct{}{}
	}
	return out
}

func difference(a, b map[uuid.UUID]struct{}) []uuid.UUID {
	out := []uuid.UUID{}
	for id := range a {
		if _, ok := b[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func unmappedStages(leads []Lead) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, l := range leads {
		raw := l.RawStage
		if raw == "" {
			continue
		}
		if _, known := Resolve(raw); known {
			continue
		}
		if _, dup := seen[raw]; !dup {
			seen[raw] = struct{}{}
			out = append(out, raw)
		}
	}
	sort.Strings(out)
	return out
}
