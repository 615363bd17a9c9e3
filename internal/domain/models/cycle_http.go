package models

// Requests for the cycle HTTP endpoints.

type RunCycleRequest struct {
	AsOf         string `json:"as_of" query:"as_of" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	SizingMethod string `json:"sizing_method" query:"sizing_method" validate:"omitempty,oneof=equal_weight signal_weighted vol_targeted"`
	Persist      *bool  `json:"persist" query:"persist" default:"true"`
}

// ShouldPersist reports whether the caller wants the intent stored.
func (r RunCycleRequest) ShouldPersist() bool {
	return r.Persist == nil || *r.Persist
}

type IntentListRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}
