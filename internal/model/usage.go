package model

import "time"

// APIUsage is one audited API-key request.
type APIUsage struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	StatusCode int       `json:"statusCode"`
	Timestamp  time.Time `json:"timestamp"`
}

// UsageWithUser is an APIUsage joined with its owner for admin views.
type UsageWithUser struct {
	APIUsage
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

// AdminStats is the dashboard aggregate for administrators.
type AdminStats struct {
	TotalUsers    int64           `json:"totalUsers"`
	TotalStocks   int64           `json:"totalStocks"`
	TotalAPICalls int64           `json:"totalApiCalls"` // audited usage records
	UsersByPlan   map[Plan]int64  `json:"usersByPlan"`
	RecentUsage   []UsageWithUser `json:"recentUsage"`
}
