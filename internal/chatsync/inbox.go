package chatsync

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadflow_backend/internal/notification/sse"
	"leadflow_backend/internal/stages"

	"github.com/google/uuid"
)

// ChatLead is one row of the chat inbox.
type ChatLead struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Stage     string         `json:"stage"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// LeadLister loads the leads the inbox shows.
type LeadLister interface {
	ListLeads(ctx context.Context, criteria stages.Criteria) (stages.LeadList, error)
}

// Notifier carries re-render signals to connected clients.
type Notifier interface {
	PublishToTenant(tenantID uuid.UUID, event sse.Event)
}

type tenantView struct {
	leads   map[uuid.UUID]*ChatLead
	version int64
}

// Inbox is the server-side chat view model, one view per tenant.
type Inbox struct {
	lister   LeadLister
	notifier Notifier

	mu    sync.RWMutex
	views map[uuid.UUID]*tenantView
}

func NewInbox(lister LeadLister, notifier Notifier) *Inbox {
	return &Inbox{lister: lister, notifier: notifier, views: make(map[uuid.UUID]*tenantView)}
}

// Apply renames the lead and merges the changed fields into its row.
func (i *Inbox) Apply(u Update) bool {
	i.mu.Lock()
	view, ok := i.views[u.TenantID]
	if !ok {
		i.mu.Unlock()
		return false
	}
	row, ok := view.leads[u.LeadID]
	if !ok {
		i.mu.Unlock()
		return false
	}
	applyUpdate(row, u)
	view.version++
	snapshot := *row
	snapshot.Metadata = copyMetadata(row.Metadata)
	i.mu.Unlock()

	i.notify(u.TenantID, sse.Event{Type: sse.EventChatLeadUpdated, LeadID: u.LeadID, Data: snapshot})
	return true
}

// Refresh reloads the tenant's list with the chat criteria. The lead list
// may come from a cache older than changes already applied here, so an
// overlay update newer than its reloaded row is merged back in.
func (i *Inbox) Refresh(ctx context.Context, tenantID uuid.UUID, overlay []Update) error {
	list, err := i.lister.ListLeads(ctx, stages.ChatCriteria(tenantID))
	if err != nil {
		return err
	}

	leads := make(map[uuid.UUID]*ChatLead, len(list.Leads))
	for _, l := range list.Leads {
		leads[l.ID] = &ChatLead{
			ID:        l.ID,
			Name:      l.Name,
			Stage:     l.Stage,
			Email:     l.Email,
			Phone:     l.Phone,
			Metadata:  copyMetadata(l.Metadata),
			UpdatedAt: l.UpdatedAt,
		}
	}
	for _, u := range overlay {
		row, ok := leads[u.LeadID]
		if ok && u.TenantID == tenantID && u.Timestamp.After(row.UpdatedAt) {
			applyUpdate(row, u)
		}
	}

	i.mu.Lock()
	view, ok := i.views[tenantID]
	if !ok {
		view = &tenantView{}
		i.views[tenantID] = view
	}
	view.leads = leads
	view.version++
	version := view.version
	i.mu.Unlock()

	i.notify(tenantID, sse.Event{
		Type: sse.EventChatRefreshed,
		Data: map[string]any{"count": len(leads), "version": version, "source": list.Source},
	})
	return nil
}

// Leads returns the tenant's rows sorted by name, loading the view on
// first use.
func (i *Inbox) Leads(ctx context.Context, tenantID uuid.UUID) ([]ChatLead, error) {
	i.mu.RLock()
	_, loaded := i.views[tenantID]
	i.mu.RUnlock()
	if !loaded {
		if err := i.Refresh(ctx, tenantID, nil); err != nil {
			return nil, err
		}
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	view := i.views[tenantID]
	out := make([]ChatLead, 0, len(view.leads))
	for _, row := range view.leads {
		item := *row
		item.Metadata = copyMetadata(row.Metadata)
		out = append(out, item)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Name == out[b].Name {
			return out[a].ID.String() < out[b].ID.String()
		}
		return out[a].Name < out[b].Name
	})
	return out, nil
}

func applyUpdate(row *ChatLead, u Update) {
	row.Name = u.Name
	if u.Stage != "" {
		row.Stage = u.Stage
		if row.Metadata == nil {
			row.Metadata = map[string]any{}
		}
		row.Metadata["stage"] = u.Stage
	}
	if u.Email != "" {
		row.Email = u.Email
	}
	if u.Phone != "" {
		row.Phone = u.Phone
	}
	row.UpdatedAt = u.Timestamp
}

func (i *Inbox) notify(tenantID uuid.UUID, event sse.Event) {
	if i.notifier != nil {
		i.notifier.PublishToTenant(tenantID, event)
	}
}

func copyMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
