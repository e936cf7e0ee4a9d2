// Package audit persists the trail of reconciliation passes.
package audit

import "time"

// Record is one completed reconciliation as stored in postgres.
type Record struct {
	ID         string
	OperatorID string
	SubjectID  string
	TenantID   string
	Requested  []string
	Applied    []string
	Failed     []string
	StartedAt  time.Time
	DurationMS int64
}

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	OperatorID string
	SubjectID  string
	TenantID   string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// PagingInfo carries timeline paging state.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []Record
	Paging PagingInfo
}
