package model

// DashboardAggregate holds dashboard totals. It is always derived by folding
// over the registry and never stored.
type DashboardAggregate struct {
	Total      int
	Active     int // pending, running or paused
	Running    int
	Paused     int
	Completed  int
	Failed     int
	Cancelled  int
	TotalFiles int64
	URLsDone   int64
	URLsSeen   int64
}

// Progress is the fraction of discovered URLs processed across all
// sessions, in percent. Zero when nothing has been discovered.
func (a DashboardAggregate) Progress() float64 {
	if a.URLsSeen == 0 {
		return 0
	}
	return float64(a.URLsDone) / float64(a.URLsSeen) * 100
}
