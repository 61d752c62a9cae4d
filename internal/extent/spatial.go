package extent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"datahandler/internal/services"
)

// SpatialKind selects how a SpatialSpec enumerates its extents.
type SpatialKind string

const (
	// KindTiles treats every listed tile as one extent.
	KindTiles SpatialKind = "tiles"
	// KindFeatures treats every named feature as one extent covering its tiles.
	KindFeatures SpatialKind = "features"
)

// Feature is a named region and the tiles it intersects.
type Feature struct {
	Name  string   `json:"name"`
	Tiles []string `json:"tiles"`
}

// SpatialSpec is the serialized spatial parameter of a job.
type SpatialSpec struct {
	Kind     SpatialKind `json:"kind"`
	Tiles    []string    `json:"tiles,omitempty"`
	Features []Feature   `json:"features,omitempty"`
}

// Extent is one spatial unit of a job's final aggregation.
type Extent struct {
	Name  string
	Tiles []string
}

// Spatial is a resolved SpatialSpec.
type Spatial struct {
	Extents []Extent
	Tiles   []string
}

// Tiles builds a tile-list spec.
func Tiles(tiles ...string) SpatialSpec {
	return SpatialSpec{Kind: KindTiles, Tiles: tiles}
}

// ParseSpatial decodes and validates a serialized SpatialSpec.
func ParseSpatial(raw string) (SpatialSpec, error) {
	var spec SpatialSpec
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return SpatialSpec{}, services.Wrap(services.ErrValidation, "extent", "parse spatial", "malformed spatial spec", err)
	}
	if err := spec.Validate(); err != nil {
		return SpatialSpec{}, err
	}
	return spec, nil
}

// Validate checks that the spec names at least one non-empty tile per extent.
func (s SpatialSpec) Validate() error {
	invalid := func(format string, args ...any) error {
		return services.Wrap(services.ErrValidation, "extent", "validate spatial", fmt.Sprintf(format, args...), nil)
	}
	switch s.Kind {
	case KindTiles:
		if len(s.Tiles) == 0 {
			return invalid("tiles spec lists no tiles")
		}
		if len(s.Features) > 0 {
			return invalid("tiles spec must not carry features")
		}
		for i, tile := range s.Tiles {
			if strings.TrimSpace(tile) == "" {
				return invalid("tile %d is empty", i)
			}
		}
	case KindFeatures:
		if len(s.Features) == 0 {
			return invalid("features spec lists no features")
		}
		if len(s.Tiles) > 0 {
			return invalid("features spec must not carry bare tiles")
		}
		names := make(map[string]struct{}, len(s.Features))
		for i, f := range s.Features {
			if strings.TrimSpace(f.Name) == "" {
				return invalid("feature %d has no name", i)
			}
			if _, dup := names[f.Name]; dup {
				return invalid("feature %q is listed twice", f.Name)
			}
			names[f.Name] = struct{}{}
			if len(f.Tiles) == 0 {
				return invalid("feature %q covers no tiles", f.Name)
			}
			for _, tile := range f.Tiles {
				if strings.TrimSpace(tile) == "" {
					return invalid("feature %q lists an empty tile", f.Name)
				}
			}
		}
	default:
		return invalid("unknown spatial kind %q", s.Kind)
	}
	return nil
}

// Encode renders the spec as JSON for storage.
func (s SpatialSpec) Encode() string {
	data, _ := json.Marshal(s)
	return string(data)
}

// Resolve expands the spec into its ordered extents and the sorted, unique
// tile set they cover.
func (s SpatialSpec) Resolve() (Spatial, error) {
	if err := s.Validate(); err != nil {
		return Spatial{}, err
	}
	var extents []Extent
	switch s.Kind {
	case KindTiles:
		seen := make(map[string]struct{}, len(s.Tiles))
		for _, tile := range s.Tiles {
			tile = strings.TrimSpace(tile)
			if _, dup := seen[tile]; dup {
				continue
			}
			seen[tile] = struct{}{}
			extents = append(extents, Extent{Name: tile, Tiles: []string{tile}})
		}
	case KindFeatures:
		for _, f := range s.Features {
			tiles := make([]string, 0, len(f.Tiles))
			for _, tile := range f.Tiles {
				tiles = append(tiles, strings.TrimSpace(tile))
			}
			extents = append(extents, Extent{Name: f.Name, Tiles: tiles})
		}
	}

	set := map[string]struct{}{}
	for _, e := range extents {
		for _, tile := range e.Tiles {
			set[tile] = struct{}{}
		}
	}
	tiles := make([]string, 0, len(set))
	for tile := range set {
		tiles = append(tiles, tile)
	}
	sort.Strings(tiles)
	return Spatial{Extents: extents, Tiles: tiles}, nil
}

// Slice returns the extents in [start, end), clamped to the available range.
func (s Spatial) Slice(start, end int64) []Extent {
	n := int64(len(s.Extents))
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= end {
		return nil
	}
	return s.Extents[start:end]
}
