package models

import (
	"time"
)

// Tab represents a named group of widgets on a user's dashboard
type Tab struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Icon      string    `json:"icon,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateTabRequest represents the request payload for creating a tab
type CreateTabRequest struct {
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
}

// UpdateTabRequest represents a partial tab update; nil fields are left unchanged
type UpdateTabRequest struct {
	Label *string `json:"label,omitempty"`
	Icon  *string `json:"icon,omitempty"`
	Order *int    `json:"order,omitempty"`
}

// ReorderTabsRequest carries the complete new tab order, first to last
type ReorderTabsRequest struct {
	TabIDs []string `json:"tabIds"`
}
