package transport

import "leadflow_backend/internal/chatsync"

// SyncLeadRequest reports a stage or name change made on another surface.
// Validation happens in the sync engine.
type SyncLeadRequest struct {
	Name  string `json:"name"`
	Stage string `json:"stage,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type SyncLeadResponse struct {
	Outcome chatsync.Outcome `json:"outcome"`
}

type ChatLeadsResponse struct {
	Items []chatsync.ChatLead `json:"items"`
	Total int                 `json:"total"`
}
