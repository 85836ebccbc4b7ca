package models

import "time"

// BanRecord marks a user identity as banned for one site.
type BanRecord struct {
	SiteID   string    `json:"siteId"`
	UserID   string    `json:"userId"`
	BannedBy string    `json:"bannedBy"`
	BannedAt time.Time `json:"bannedAt"`
}

// ImportResult reports the outcome of a bulk import.
type ImportResult struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}
