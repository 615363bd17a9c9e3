package models

type ExclusionReason string

const (
	ExcludeBelowMinPrice    ExclusionReason = "below_min_price"
	ExcludeBelowMinVolume   ExclusionReason = "below_min_volume"
	ExcludeInsufficientData ExclusionReason = "insufficient_data"
	ExcludeManual           ExclusionReason = "manually_excluded"
	ExcludeMaxNamesExceeded ExclusionReason = "max_names_exceeded"
	ExcludeDataTooStale     ExclusionReason = "data_too_stale"
)

type SymbolExclusion struct {
	Symbol string          `json:"symbol"`
	Reason ExclusionReason `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

// UniverseResult is the tradeable set plus the audit trail of what was left out.
type UniverseResult struct {
	Included []string          `json:"included"`
	Excluded []SymbolExclusion `json:"excluded"`
}

// Contains reports whether symbol survived filtering.
func (u UniverseResult) Contains(symbol string) bool {
	for _, s := range u.Included {
		if s == symbol {
			return true
		}
	}
	return false
}
