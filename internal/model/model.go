package model

import "time"

type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictBug  Verdict = "BUG"
)

type ProbeRequest struct {
	Method string            // GET, POST, PUT or DELETE
	Path   string            // route with a leading slash
	Body   any               // JSON body, sent for POST and PUT only
	Query  map[string]string // query parameters
}

type ProbeResult struct {
	StatusCode int
	Body       any // decoded JSON, nil for empty bodies or non-JSON error pages
	Elapsed    time.Duration
}

// CheckRecord is one evaluated expectation. Field names in JSON follow the
// report format consumed by the QA team.
type CheckRecord struct {
	Name        string  `json:"test_name"`
	Timestamp   string  `json:"timestamp"`
	Expected    string  `json:"expected"`
	Actual      string  `json:"actual"`
	Verdict     Verdict `json:"status"`
	Description *string `json:"bug_description"`
}

func (r CheckRecord) IsBug() bool {
	return r.Verdict == VerdictBug
}

type ReportBundle struct {
	All  []CheckRecord
	Bugs []CheckRecord
}

// NewReportBundle keeps the relative order of records.
func NewReportBundle(all []CheckRecord) ReportBundle {
	bugs := make([]CheckRecord, 0)
	for _, r := range all {
		if r.IsBug() {
			bugs = append(bugs, r)
		}
	}
	return ReportBundle{All: all, Bugs: bugs}
}

func (b ReportBundle) Passed() int {
	return len(b.All) - len(b.Bugs)
}
