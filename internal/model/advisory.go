package model

// AdvisorySeverity indicates the urgency level of an advisory.
type AdvisorySeverity int

const (
	SeverityNormal AdvisorySeverity = iota
	SeverityWarning
	SeverityCritical
)

// AdvisoryCategory groups related advisories.
type AdvisoryCategory int

const (
	CategoryConnectivity AdvisoryCategory = iota
	CategorySessionHealth
	CategoryConsistency
)

func (c AdvisoryCategory) String() string {
	switch c {
	case CategoryConnectivity:
		return "Connectivity"
	case CategorySessionHealth:
		return "Session health"
	case CategoryConsistency:
		return "Consistency"
	default:
		return "Other"
	}
}

// Advisory is a single observation about the dashboard's state worth
// showing to the user.
type Advisory struct {
	Severity  AdvisorySeverity
	Category  AdvisoryCategory
	SessionID string // empty for dashboard-wide advisories
	Title     string
	Detail    string
}
