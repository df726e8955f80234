package models

import (
	"encoding/json"
	"time"
)

const (
	BoardIDMaxLength     = 255
	DefaultBoardName     = "Untitled Board"
	NewBoardName         = "New Board"
	DuplicateBoardSuffix = " (copy)"
)

// Board is a persisted canvas document.
type Board struct {
	ID          string          `json:"-"`
	BoardID     string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Document    Document        `json:"-"`
	Settings    json.RawMessage `json:"settings"`
	Version     int64           `json:"version"`
	LastSavedAt time.Time       `json:"lastSaved"`
	CreatedAt   time.Time       `json:"created"`
	UpdatedAt   time.Time       `json:"updated"`
}

// BoardSettings mirrors the display configuration a new board starts with.
// Stored settings are opaque; this type only produces the defaults.
type BoardSettings struct {
	BackgroundColor string       `json:"backgroundColor"`
	Grid            GridSettings `json:"grid"`
	Zoom            ZoomSettings `json:"zoom"`
	Canvas          CanvasSize   `json:"canvas"`
}

type GridSettings struct {
	Type    string `json:"type"`
	Size    int    `json:"size"`
	Visible bool   `json:"visible"`
	Color   string `json:"color"`
}

type ZoomSettings struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

type CanvasSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultSettings returns the settings assigned to boards created without any.
func DefaultSettings() json.RawMessage {
	encoded, err := json.Marshal(BoardSettings{
		BackgroundColor: "#F5F5F5",
		Grid:            GridSettings{Type: "line", Size: 20, Visible: true, Color: "#E0E0E0"},
		Zoom:            ZoomSettings{Min: 0.1, Max: 5.0, Default: 1.0},
		Canvas:          CanvasSize{Width: 2000, Height: 2000},
	})
	if err != nil {
		panic(err)
	}
	return encoded
}
