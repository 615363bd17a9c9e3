package repository

// Timeframe is a bar resolution.
type Timeframe string

const (
	TF1Min  Timeframe = "1Min"
	TF5Min  Timeframe = "5Min"
	TF15Min Timeframe = "15Min"
	TF1Hour Timeframe = "1Hour"
	TF1Day  Timeframe = "1Day"
	TF1Week Timeframe = "1Week"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1Min, TF5Min, TF15Min, TF1Hour, TF1Day, TF1Week:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1Day }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// BarsPerTradingDay approximates how many bars of tf fit in one US session.
func BarsPerTradingDay(tf Timeframe) float64 {
	switch tf {
	case TF1Min:
		return 390
	case TF5Min:
		return 78
	case TF15Min:
		return 26
	case TF1Hour:
		return 7
	case TF1Day:
		return 1
	case TF1Week:
		return 0.2
	default:
		return 1
	}
}
