package domain

import "time"

// Area is a user-defined geographic boundary. The pipeline treats areas as
// read-only; they are created through the API and never mutated by jobs.
type Area struct {
	ID        int64
	Name      string
	Geometry  Polygon
	Metadata  map[string]any
	CreatedAt time.Time
}
