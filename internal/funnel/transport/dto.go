package transport

// ListLeadsRequest narrows the funnel board. The defaults hide closed,
// removed and deleted leads.
type ListLeadsRequest struct {
	IncludeClosed  bool   `form:"includeClosed"`
	IncludeRemoved bool   `form:"includeRemoved"`
	IncludeDeleted bool   `form:"includeDeleted"`
	Stages         string `form:"stages" validate:"omitempty,max=200"`
}

type CountsRequest struct {
	IncludeClosed  bool `form:"includeClosed"`
	IncludeRemoved bool `form:"includeRemoved"`
	IncludeDeleted bool `form:"includeDeleted"`
}

type UpdateStageRequest struct {
	Stage string `json:"stage" validate:"required,nonblank,max=100"`
}
