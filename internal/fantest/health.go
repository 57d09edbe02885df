package fantest

type Health int

const (
	HealthPoor Health = iota
	HealthGood
	HealthVeryGood
	HealthExcellent
)

func (h Health) String() string {
	switch h {
	case HealthPoor:
		return "Poor"
	case HealthGood:
		return "Good"
	case HealthVeryGood:
		return "Very Good"
	case HealthExcellent:
		return "Excellent"
	default:
		return "Unknown"
	}
}

// HealthOf grades an average RPM at near-full duty.
func HealthOf(avgRPM int) Health {
	switch {
	case avgRPM < 2000:
		return HealthPoor
	case avgRPM < 3500:
		return HealthGood
	case avgRPM < 4500:
		return HealthVeryGood
	default:
		return HealthExcellent
	}
}

func InSync(avg1, avg2 int) bool {
	diff := avg1 - avg2
	if diff < 0 {
		diff = -diff
	}
	return diff < syncTolerance
}

type Verdict int

const (
	VerdictNeedsAttention Verdict = iota
	VerdictExcellent
)

func (v Verdict) String() string {
	if v == VerdictExcellent {
		return "Excellent"
	}
	return "Needs attention"
}

func VerdictOf(avg1, avg2 int) Verdict {
	if avg1 > excellentRPM && avg2 > excellentRPM && InSync(avg1, avg2) {
		return VerdictExcellent
	}
	return VerdictNeedsAttention
}
