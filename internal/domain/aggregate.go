package domain

import "time"

// DailyAggregate holds per-status average durations for one calendar day.
// Rows are fully recomputed on each aggregation run, never incremented.
type DailyAggregate struct {
	BucketDate         time.Time
	Status             TicketStatus
	AvgWallSeconds     float64
	AvgBusinessSeconds float64
	SegmentCount       int
}

// WeeklyAggregate is the ISO-week counterpart of DailyAggregate.
type WeeklyAggregate struct {
	ISOYear            int
	ISOWeek            int
	Status             TicketStatus
	AvgWallSeconds     float64
	AvgBusinessSeconds float64
	SegmentCount       int
}
