package domain

import (
	"sort"
	"time"
)

const TemplateKindBudget = "budget"

// Record is one promise's progress for the week. Nil numeric fields count as
// zero; a nil Recurring counts as false.
type Record struct {
	Text          string   `json:"text"`
	HoursPromised *float64 `json:"hours_promised,omitempty"`
	HoursSpent    *float64 `json:"hours_spent,omitempty"`
	Recurring     *bool    `json:"recurring,omitempty"`
	TemplateKind  string   `json:"template_kind,omitempty"`
}

func (r Record) Promised() float64 {
	if r.HoursPromised == nil {
		return 0
	}
	return *r.HoursPromised
}

func (r Record) Spent() float64 {
	if r.HoursSpent == nil {
		return 0
	}
	return *r.HoursSpent
}

func (r Record) IsRecurring() bool {
	return r.Recurring != nil && *r.Recurring
}

type Report struct {
	WeekStart     string            `json:"week_start"`
	WeekEnd       string            `json:"week_end"`
	Promises      map[string]Record `json:"promises"`
	TotalPromised float64           `json:"total_promised"`
	TotalSpent    float64           `json:"total_spent"`
}

// SortedIDs orders records by text, then id, for stable display.
func (r Report) SortedIDs() []string {
	ids := make([]string, 0, len(r.Promises))
	for id := range r.Promises {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.Promises[ids[i]], r.Promises[ids[j]]
		if a.Text != b.Text {
			return a.Text < b.Text
		}
		return ids[i] < ids[j]
	})
	return ids
}

type Kind string

const (
	KindPromise     Kind = "promises"
	KindTask        Kind = "tasks"
	KindDistraction Kind = "distractions"
)

var Kinds = []Kind{KindPromise, KindTask, KindDistraction}

// Classify applies the bucket precedence: budget, then recurring, then task.
func Classify(r Record) Kind {
	switch {
	case r.TemplateKind == TemplateKindBudget:
		return KindDistraction
	case r.IsRecurring():
		return KindPromise
	default:
		return KindTask
	}
}

// Views holds one projection per bucket; a nil view means the bucket is empty.
type Views struct {
	Promises     *Report
	Tasks        *Report
	Distractions *Report
}

func (v Views) Get(k Kind) *Report {
	switch k {
	case KindPromise:
		return v.Promises
	case KindTask:
		return v.Tasks
	case KindDistraction:
		return v.Distractions
	default:
		return nil
	}
}

// Aggregate partitions r into the three buckets in a single pass. Bucket totals
// are summed from the bucket's own records; r is not modified.
func Aggregate(r Report) Views {
	buckets := map[Kind]*Report{}
	for id, rec := range r.Promises {
		kind := Classify(rec)
		view, ok := buckets[kind]
		if !ok {
			view = &Report{WeekStart: r.WeekStart, WeekEnd: r.WeekEnd, Promises: map[string]Record{}}
			buckets[kind] = view
		}
		view.Promises[id] = rec
		view.TotalPromised += rec.Promised()
		view.TotalSpent += rec.Spent()
	}
	return Views{
		Promises:     buckets[KindPromise],
		Tasks:        buckets[KindTask],
		Distractions: buckets[KindDistraction],
	}
}

// BucketTotals is the persisted summary of one bucket.
type BucketTotals struct {
	Kind     Kind
	Count    int
	Promised float64
	Spent    float64
}

// WeekSummary is what the snapshot projector stores per week.
type WeekSummary struct {
	WeekStart  string
	WeekEnd    string
	CapturedAt time.Time
	Buckets    []BucketTotals
}

func Summarize(r Report, views Views, capturedAt time.Time) WeekSummary {
	summary := WeekSummary{WeekStart: r.WeekStart, WeekEnd: r.WeekEnd, CapturedAt: capturedAt}
	for _, k := range Kinds {
		totals := BucketTotals{Kind: k}
		if view := views.Get(k); view != nil {
			totals.Count = len(view.Promises)
			totals.Promised = view.TotalPromised
			totals.Spent = view.TotalSpent
		}
		summary.Buckets = append(summary.Buckets, totals)
	}
	return summary
}

// WeekReport is a fetched report together with its projections.
type WeekReport struct {
	Label  string
	Report Report
	Views  Views
}
