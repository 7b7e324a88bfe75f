package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/feed"
	"bus-tracker/internal/transit"
)

func TestSplitTable(t *testing.T) {
	s, n := splitTable("bus_positions")
	assert.Equal(t, "public", s)
	assert.Equal(t, "bus_positions", n)

	s, n = splitTable(" live.positions ")
	assert.Equal(t, "live", s)
	assert.Equal(t, "positions", n)
}

func TestPositionsQuerySanitizesIdentifiers(t *testing.T) {
	q := positionsQuery("public", `bus"; DROP TABLE x; --`, []string{"bus_id", "latitude"})
	assert.Equal(t,
		`SELECT "bus_id"::text AS "bus_id", "latitude"::text AS "latitude" FROM "public"."bus""; DROP TABLE x; --"`,
		q)
}

func TestSelectColumns(t *testing.T) {
	_, err := selectColumns(map[string]bool{"bus_id": true, "latitude": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route_number, longitude")

	cols, err := selectColumns(map[string]bool{
		"bus_id": true, "route_number": true, "latitude": true, "longitude": true,
		"speed": true, "gps_valid": true, "heading": false,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bus_id", "route_number", "latitude", "longitude", "speed", "gps_valid"}, cols)
}

func TestRowRecordNormalizesAsDatabaseShape(t *testing.T) {
	cols := []string{"bus_id", "route_number", "latitude", "longitude", "heading", "speed"}
	rec := rowRecord(cols, []sql.NullString{
		{String: "4012", Valid: true},
		{String: "10", Valid: true},
		{String: "40.41", Valid: true},
		{String: "-3.70", Valid: true},
		{},
		{String: "12.5", Valid: true},
	})
	assert.False(t, rec.Has("heading"))

	vs, stats := feed.Normalize([]transit.Record{rec})
	require.Len(t, vs, 1)
	assert.Equal(t, 1, stats.ByShape[feed.ShapeDatabase])
	assert.Equal(t, "4012", vs[0].ID)
	assert.Equal(t, "10", vs[0].RouteNumber)
	assert.Equal(t, transit.Unknown, vs[0].Heading)
	assert.InDelta(t, 12.5, vs[0].Speed, 1e-9)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://bus:xxxxx@db:5432/live", Redact("postgres://bus:secret@db:5432/live"))
	assert.Equal(t, "postgres://db/live", Redact("postgres://db/live"))
	assert.Equal(t, "host=db user=bus password=xxxxx dbname=live", Redact("host=db user=bus password=secret dbname=live"))
	assert.Equal(t, "", Redact(""))
}
