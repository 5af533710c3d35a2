package dto

import "time"

// WeeklyInput selects the ISO week containing WeekOf; zero means this week.
type WeeklyInput struct {
	WeekOf time.Time
}

type RecordView struct {
	ID            string
	Text          string
	HoursPromised float64
	HoursSpent    float64
}

type BucketView struct {
	Kind          string
	Records       []RecordView
	TotalPromised float64
	TotalSpent    float64
}

type WeeklyOutput struct {
	Label         string
	WeekStart     string
	WeekEnd       string
	Promises      *BucketView
	Tasks         *BucketView
	Distractions  *BucketView
	TotalPromised float64
	TotalSpent    float64
}

type BucketTotals struct {
	Kind     string
	Count    int
	Promised float64
	Spent    float64
}

type HistoryEntry struct {
	WeekStart  string
	WeekEnd    string
	CapturedAt time.Time
	Buckets    []BucketTotals
}

type ExportInput struct {
	WeekOf time.Time
	Format string
	Dir    string
}

type ExportOutput struct {
	Path   string
	Format string
	Label  string
}
