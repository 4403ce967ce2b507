package models

import (
	"time"
)

// WidgetTypeURL is the only widget type: a link tile
const WidgetTypeURL = "url"

// GridPosition places a widget on the dashboard grid.
// X and Y are zero-based cells; W and H are at least one cell.
type GridPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Bottom returns the first row below the widget
func (g GridPosition) Bottom() int {
	return g.Y + g.H
}

// URLWidgetData is the payload of a url widget
type URLWidgetData struct {
	URL string `json:"url"`
}

// Widget represents a tile within a tab
type Widget struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Name         string        `json:"name,omitempty"`
	Data         URLWidgetData `json:"data"`
	Color        string        `json:"color"`
	IconURL      string        `json:"iconUrl,omitempty"`
	GridPosition GridPosition  `json:"gridPosition"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// CreateWidgetRequest represents the request payload for creating a widget
type CreateWidgetRequest struct {
	Type         string        `json:"type,omitempty"`
	Name         string        `json:"name,omitempty"`
	Data         URLWidgetData `json:"data"`
	Color        string        `json:"color,omitempty"`
	IconURL      string        `json:"iconUrl,omitempty"`
	GridPosition *GridPosition `json:"gridPosition,omitempty"`
}

// UpdateWidgetRequest represents a partial widget update
type UpdateWidgetRequest struct {
	Name         *string        `json:"name,omitempty"`
	Data         *URLWidgetData `json:"data,omitempty"`
	Color        *string        `json:"color,omitempty"`
	IconURL      *string        `json:"iconUrl,omitempty"`
	GridPosition *GridPosition  `json:"gridPosition,omitempty"`
}
