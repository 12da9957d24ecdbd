package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrInvalidGeometry = errors.New("invalid geometry")

// Point is a geographic coordinate in EPSG:4326 (lon/lat degrees).
type Point struct {
	Lon float64
	Lat float64
}

// Ring is a closed linear ring of coordinates. The closing point may be
// omitted; containment tests treat the ring as implicitly closed.
type Ring []Point

// Polygon is an area boundary: one exterior ring plus optional holes.
type Polygon struct {
	Exterior Ring
	Holes    []Ring
}

// BoundingBox is an axis-aligned geographic extent. The JSON field names
// match the stored timeseries bounding boxes.
type BoundingBox struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

func (b BoundingBox) Width() float64  { return b.MaxX - b.MinX }
func (b BoundingBox) Height() float64 { return b.MaxY - b.MinY }

func (b BoundingBox) IsEmpty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Intersect returns the overlap of two boxes; the result may be empty.
func (b BoundingBox) Intersect(other BoundingBox) BoundingBox {
	return BoundingBox{
		MinX: math.Max(b.MinX, other.MinX),
		MinY: math.Max(b.MinY, other.MinY),
		MaxX: math.Min(b.MaxX, other.MaxX),
		MaxY: math.Min(b.MaxY, other.MaxY),
	}
}

func (p Polygon) Validate() error {
	if len(p.Exterior) < 3 {
		return fmt.Errorf("%w: exterior ring needs at least 3 points", ErrInvalidGeometry)
	}
	for _, ring := range p.Holes {
		if len(ring) < 3 {
			return fmt.Errorf("%w: hole ring needs at least 3 points", ErrInvalidGeometry)
		}
	}
	return nil
}

func (p Polygon) Bounds() BoundingBox {
	box := BoundingBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, pt := range p.Exterior {
		box.MinX = math.Min(box.MinX, pt.Lon)
		box.MinY = math.Min(box.MinY, pt.Lat)
		box.MaxX = math.Max(box.MaxX, pt.Lon)
		box.MaxY = math.Max(box.MaxY, pt.Lat)
	}
	return box
}

// Contains reports whether the point falls inside the polygon, holes
// excluded. Points exactly on an edge count as inside.
func (p Polygon) Contains(pt Point) bool {
	if !ringContains(p.Exterior, pt) {
		return false
	}
	for _, hole := range p.Holes {
		if ringContains(hole, pt) {
			return false
		}
	}
	return true
}

// ringContains uses even-odd ray casting against a horizontal ray.
func ringContains(ring Ring, pt Point) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		a, b := ring[i], ring[j]
		if onSegment(a, b, pt) {
			return true
		}
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			crossLon := a.Lon + (pt.Lat-a.Lat)/(b.Lat-a.Lat)*(b.Lon-a.Lon)
			if pt.Lon < crossLon {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func onSegment(a, b, pt Point) bool {
	const eps = 1e-12
	cross := (b.Lon-a.Lon)*(pt.Lat-a.Lat) - (b.Lat-a.Lat)*(pt.Lon-a.Lon)
	if math.Abs(cross) > eps {
		return false
	}
	if pt.Lon < math.Min(a.Lon, b.Lon)-eps || pt.Lon > math.Max(a.Lon, b.Lon)+eps {
		return false
	}
	if pt.Lat < math.Min(a.Lat, b.Lat)-eps || pt.Lat > math.Max(a.Lat, b.Lat)+eps {
		return false
	}
	return true
}

type geoJSONGeometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// MarshalGeoJSON renders the polygon as a GeoJSON Polygon geometry, the
// interchange format used at the API boundary and by the acquisition
// provider.
func (p Polygon) MarshalGeoJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rings := make([][][]float64, 0, 1+len(p.Holes))
	rings = append(rings, ringCoordinates(p.Exterior))
	for _, hole := range p.Holes {
		rings = append(rings, ringCoordinates(hole))
	}
	return json.Marshal(geoJSONGeometry{Type: "Polygon", Coordinates: rings})
}

func ringCoordinates(ring Ring) [][]float64 {
	coords := make([][]float64, 0, len(ring)+1)
	for _, pt := range ring {
		coords = append(coords, []float64{pt.Lon, pt.Lat})
	}
	// GeoJSON rings are explicitly closed.
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		coords = append(coords, []float64{ring[0].Lon, ring[0].Lat})
	}
	return coords
}

// UnmarshalGeoJSON parses a GeoJSON Polygon geometry.
func UnmarshalGeoJSON(data []byte) (Polygon, error) {
	var geom geoJSONGeometry
	if err := json.Unmarshal(data, &geom); err != nil {
		return Polygon{}, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if geom.Type != "Polygon" {
		return Polygon{}, fmt.Errorf("%w: unsupported geometry type %q", ErrInvalidGeometry, geom.Type)
	}
	if len(geom.Coordinates) == 0 {
		return Polygon{}, fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}

	polygon := Polygon{}
	for index, rawRing := range geom.Coordinates {
		ring := make(Ring, 0, len(rawRing))
		for _, coord := range rawRing {
			if len(coord) < 2 {
				return Polygon{}, fmt.Errorf("%w: coordinate needs lon and lat", ErrInvalidGeometry)
			}
			ring = append(ring, Point{Lon: coord[0], Lat: coord[1]})
		}
		// Drop the redundant closing point.
		if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
		if index == 0 {
			polygon.Exterior = ring
		} else {
			polygon.Holes = append(polygon.Holes, ring)
		}
	}
	if err := polygon.Validate(); err != nil {
		return Polygon{}, err
	}
	return polygon, nil
}
