package euclid

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// LoadShapefile reads sites from a shapefile, taking the id from the
// named attribute field. Point records are used directly; polygon
// records contribute their area centroid.
func LoadShapefile(shpPath, idField string) ([]Site, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "euclid: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	idIdx := -1
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, idField) {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, eris.Errorf("euclid: shapefile has no %q field", idField)
	}

	var sites []Site
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			skipped++
			continue
		}

		coord, err := shapeCoord(shape)
		if err != nil {
			skipped++
			continue
		}

		id := strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		if id == "" {
			skipped++
			continue
		}
		sites = append(sites, Site{ID: id, Coord: coord})
	}

	if skipped > 0 {
		zap.L().Debug("euclid: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return sites, nil
}

// shapeCoord reduces a shapefile record to a representative coordinate.
func shapeCoord(shape shp.Shape) (geom.Coord, error) {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.Coord{s.X, s.Y}, nil
	case *shp.PointZ:
		return geom.Coord{s.X, s.Y}, nil
	case *shp.PointM:
		return geom.Coord{s.X, s.Y}, nil
	case *shp.Polygon:
		return polygonCentroid(s)
	default:
		return nil, eris.Errorf("euclid: unsupported shape type %T", shape)
	}
}

// polygonCentroid converts a shapefile polygon to go-geom rings and
// takes the area centroid.
func polygonCentroid(p *shp.Polygon) (geom.Coord, error) {
	if len(p.Points) == 0 {
		return nil, eris.New("euclid: empty polygon")
	}

	poly := geom.NewPolygon(geom.XY)
	for i, start := range p.Parts {
		end := len(p.Points)
		if i+1 < len(p.Parts) {
			end = int(p.Parts[i+1])
		}
		flat := make([]float64, 0, 2*(end-int(start)))
		for j := int(start); j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if err := poly.Push(ring); err != nil {
			return nil, eris.Wrap(err, "euclid: polygon ring")
		}
	}

	centroid, err := xy.Centroid(poly)
	if err != nil {
		return nil, eris.Wrap(err, "euclid: centroid")
	}
	return centroid, nil
}
