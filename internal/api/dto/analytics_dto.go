package dto

import "time"

// LifecyclePointResponse is one bucket/status row of the lifecycle view.
type LifecyclePointResponse struct {
	Bucket               string  `json:"bucket"`
	Status               string  `json:"status"`
	AvgDurationSeconds   float64 `json:"avg_duration_seconds"`
	AvgDurationFormatted string  `json:"avg_duration_formatted"`
	Count                int     `json:"count"`
}

// ClosurePointResponse is one bucket/assignee row of the closures view.
type ClosurePointResponse struct {
	Bucket       string `json:"bucket"`
	AssigneeID   string `json:"assignee_id"`
	AssigneeName string `json:"assignee_name"`
	Count        int    `json:"count"`
}

// CacheMetaResponse labels how an analytics response was served. When
// FromCache is true and Stale is true, a background refresh is already
// in flight and a later request will observe fresher data.
type CacheMetaResponse struct {
	FromCache bool       `json:"from_cache"`
	Stale     bool       `json:"stale"`
	CachedAt  *time.Time `json:"cached_at,omitempty"`
}

// JobTriggerResponse acknowledges a manually triggered background job.
type JobTriggerResponse struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}
