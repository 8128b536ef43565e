package opendata

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
)

// Column names in the city export.
const (
	colParkName   = "Park Name"
	colType       = "Type"
	colLocation   = "Location"
	colSummerHrs  = "Summer hours"
	colWheelchair = "Wheelchair access"
	colGeom       = "Geom"
)

const (
	defaultCity    = "Vancouver"
	defaultCountry = "Canada"
)

// Record is one importable washroom.
type Record struct {
	Name             string
	Description      string
	Address          string
	City             string
	Country          string
	Location         domain.Location
	OpeningHours     *string
	WheelchairAccess bool
}

// Stats summarises a parse.
type Stats struct {
	Rows    int
	Skipped int
}

type geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

// Parse reads a semicolon-delimited export. Rows without usable coordinates
// are skipped and counted.
func Parse(r io.Reader) ([]Record, Stats, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Stats{}, fmt.Errorf("dataset is empty")
		}
		return nil, Stats{}, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := index[colGeom]; !ok {
		return nil, Stats{}, fmt.Errorf("dataset has no %q column", colGeom)
	}

	var (
		records []Record
		stats   Stats
	)
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++

		row := make(map[string]string, len(index))
		for name, i := range index {
			if i < len(fields) {
				row[name] = fields[i]
			}
		}
		record, ok := convertRow(row)
		if !ok {
			stats.Skipped++
			continue
		}
		records = append(records, record)
	}
	return records, stats, nil
}

// convertRow maps one CSV row onto a Record. It reports false when the row
// has no valid point.
func convertRow(row map[string]string) (Record, bool) {
	lat, lon, ok := parseGeom(row[colGeom])
	if !ok {
		return Record{}, false
	}

	name := strings.TrimSpace(row[colParkName])
	if name == "" {
		name = "Unknown"
	}
	record := Record{
		Name:             name,
		Description:      strings.TrimSpace(row[colType]),
		Address:          strings.TrimSpace(row[colLocation]),
		City:             defaultCity,
		Country:          defaultCountry,
		Location:         domain.Location{Latitude: lat, Longitude: lon},
		WheelchairAccess: parseYes(row[colWheelchair]),
	}
	if hours := strings.TrimSpace(row[colSummerHrs]); hours != "" {
		record.OpeningHours = &hours
	}
	return record, true
}

// parseGeom extracts (lat, lon) from a GeoJSON point, whose coordinates are
// ordered [lon, lat].
func parseGeom(raw string) (float64, float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, false
	}
	var g geometry
	if err := json.Unmarshal([]byte(raw), &g); err != nil || len(g.Coordinates) < 2 {
		return 0, 0, false
	}
	lon, lat := g.Coordinates[0], g.Coordinates[1]
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

func parseYes(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1":
		return true
	}
	return false
}
