package recorder

import (
	"fmt"
	"io"
	"os"
	"time"

	"userapi_tester/internal/metrics"
	"userapi_tester/internal/model"
)

// Recorder collects check records for one run. It is owned by a single
// runner goroutine and is not safe for concurrent use.
type Recorder struct {
	out     io.Writer
	now     func() time.Time
	metrics *metrics.Run
	records []model.CheckRecord
}

type Option func(*Recorder)

func WithOutput(w io.Writer) Option {
	return func(r *Recorder) { r.out = w }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithMetrics(m *metrics.Run) Option {
	return func(r *Recorder) { r.metrics = m }
}

func New(opts ...Option) *Recorder {
	r := &Recorder{
		out:     os.Stdout,
		now:     time.Now,
		records: make([]model.CheckRecord, 0, 32),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Pass(name, expected, actual string) {
	r.Record(name, expected, actual, model.VerdictPass, "")
}

func (r *Recorder) Bug(name, expected, actual, description string) {
	r.Record(name, expected, actual, model.VerdictBug, description)
}

// Record appends a record and prints its console line. An empty description
// is stored as null.
func (r *Recorder) Record(name, expected, actual string, verdict model.Verdict, description string) {
	rec := model.CheckRecord{
		Name:      name,
		Timestamp: r.now().Format(time.RFC3339Nano),
		Expected:  expected,
		Actual:    actual,
		Verdict:   verdict,
	}
	if description != "" {
		d := description
		rec.Description = &d
	}
	r.records = append(r.records, rec)
	r.metrics.ObserveRecord(verdict)

	if rec.IsBug() {
		fmt.Fprintf(r.out, "🐛 BUG: %s\n", name)
		fmt.Fprintf(r.out, "   Expected: %s\n", expected)
		fmt.Fprintf(r.out, "   Actual: %s\n", actual)
		if description != "" {
			fmt.Fprintf(r.out, "   Description: %s\n", description)
		}
		fmt.Fprintln(r.out)
		return
	}
	fmt.Fprintf(r.out, "✅ %s - %s\n", name, verdict)
}

// Records returns a copy of everything recorded so far, in order.
func (r *Recorder) Records() []model.CheckRecord {
	out := make([]model.CheckRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *Recorder) Len() int {
	return len(r.records)
}

func (r *Recorder) Bundle() model.ReportBundle {
	return model.NewReportBundle(r.Records())
}
