package media

import (
	"encoding/json"
	"time"

	"github.com/sfomuseum/go-media-filter/catalog"
)

// type Coordinates stores a single longitude, latitude coordinate pair.
type Coordinates []float64

// type Geometry stores a GeoJSON geometry dictionary.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates Coordinates `json:"coordinates"`
}

// type Properties stores a GeoJSON properties dictionary.
type Properties map[string]interface{}

// type Feature provides a GeoJSON struct.
type Feature struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Geometry   *Geometry  `json:"geometry"`
}

// Info is a read-only display projection of a media record.
type Info struct {
	Filename string    `json:"filename"`
	Taken    time.Time `json:"date"`
	Location []float64 `json:"location,omitempty"` // lat, lon
	Path     string    `json:"path"`
	Kind     string    `json:"type"`
}

// NewInfo returns the display projection of rec.
func NewInfo(rec *catalog.MediaRecord) *Info {

	info := &Info{
		Filename: rec.Filename,
		Taken:    rec.Taken,
		Path:     rec.Path,
		Kind:     rec.Kind.String(),
	}

	if rec.Location != nil {
		info.Location = []float64{rec.Location.Lat(), rec.Location.Lon()}
	}

	return info
}

// NewMediaFeature creates a GeoJSON Feature for a media record with
// media: properties describing it. Records without a position get a
// null geometry.
func NewMediaFeature(rec *catalog.MediaRecord) ([]byte, error) {

	props := make(map[string]interface{})

	props["media:filename"] = rec.Filename
	props["media:path"] = rec.Path
	props["media:medium"] = rec.Kind.String()
	props["media:created"] = rec.Taken.Unix()

	if rec.Fingerprint != "" {
		props["media:fingerprint"] = rec.Fingerprint
	}

	var geom *Geometry

	if rec.Location != nil {

		coords := []float64{
			rec.Location.Lon(),
			rec.Location.Lat(),
		}

		geom = &Geometry{
			Type:        "Point",
			Coordinates: coords,
		}
	}

	f := &Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: props,
	}

	enc_f, err := json.Marshal(f)

	if err != nil {
		return nil, err
	}

	return enc_f, nil
}
