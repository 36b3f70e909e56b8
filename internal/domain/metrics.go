package domain

import (
	"time"
)

// TimeRange 指标统计时间范围
type TimeRange string

const (
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeAll   TimeRange = "all"
)

func (r TimeRange) Valid() bool {
	switch r {
	case RangeDay, RangeWeek, RangeMonth, RangeAll:
		return true
	}
	return false
}

// Since 返回该范围的起始时间（all 返回零值时间，表示不限）
func (r TimeRange) Since(now time.Time) time.Time {
	switch r {
	case RangeDay:
		return now.Add(-24 * time.Hour)
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return now.AddDate(0, 0, -30)
	default:
		return time.Time{}
	}
}

// IncidentMetrics 升级事件统计指标（仪表盘用）
type IncidentMetrics struct {
	TenantID  string    `json:"tenant_id"`
	TimeRange TimeRange `json:"time_range"`

	// 范围内统计
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByContext  map[Context]int  `json:"by_context"`
	ByLevel    map[Level]int    `json:"by_level"`

	// 平均解决时长（仅统计已解决的记录，未解决的不计入）
	ResolvedCount        int     `json:"resolved_count"`
	AvgResolutionMinutes float64 `json:"avg_resolution_minutes"`

	// 固定的尾随时间窗口计数（不受 TimeRange 影响）
	Last24Hours int `json:"last_24_hours"`
	Last7Days   int `json:"last_7_days"`
	Last30Days  int `json:"last_30_days"`

	GeneratedAt time.Time `json:"generated_at"`
}
