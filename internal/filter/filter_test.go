package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bus-tracker/internal/transit"
)

func vehicle(id, number, route string) transit.Vehicle {
	return transit.Vehicle{ID: id, Number: number, RouteNumber: route, Position: transit.Position{Lat: 47.5, Lng: -52.7}}
}

func ids(vs []transit.Vehicle) []string {
	out := []string{}
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

func stopIDs(ss []transit.Stop) []string {
	out := []string{}
	for _, s := range ss {
		out = append(out, s.ID)
	}
	return out
}

func TestVehiclesNoFilterIdentity(t *testing.T) {
	all := []transit.Vehicle{vehicle("a", "1", "1"), vehicle("b", "2", "2")}

	assert.Equal(t, all, Vehicles(all, nil, ""))
	assert.Equal(t, all, Vehicles(all, []string{}, "   "))
	assert.Empty(t, Vehicles(nil, nil, ""))
}

func TestVehiclesRouteFilter(t *testing.T) {
	all := []transit.Vehicle{
		vehicle("a", "100", "1"),
		vehicle("b", "200", "2"),
		vehicle("c", "300", "10"),
		vehicle("d", "400", "01"),
		vehicle("e", "500", " 2 "),
		vehicle("f", "600", transit.Unknown),
	}

	tests := []struct {
		name   string
		routes []string
		want   []string
	}{
		{"exact, no prefix match", []string{"1"}, []string{"a", "d"}},
		{"numeric equivalence", []string{"01"}, []string{"a", "d"}},
		{"trimmed", []string{" 2"}, []string{"b", "e"}},
		{"any of several", []string{"2", "10"}, []string{"b", "c", "e"}},
		{"no match is empty", []string{"99"}, []string{}},
		{"non-numeric filter", []string{"X"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Vehicles(all, tt.routes, "")))
		})
	}
}

func TestVehiclesSubstringQuery(t *testing.T) {
	all := []transit.Vehicle{
		vehicle("a", "Bus42", "1"),
		vehicle("b", "X42Y", "2"),
		vehicle("c", "99", "3"),
	}

	assert.Equal(t, []string{"a", "b"}, ids(Vehicles(all, nil, "42")))
	assert.Equal(t, []string{"a"}, ids(Vehicles(all, nil, " bUS ")))
	assert.Equal(t, []string{}, ids(Vehicles(all, nil, "7")))
}

func TestVehiclesCompound(t *testing.T) {
	all := []transit.Vehicle{
		vehicle("a", "1701", "1"),
		vehicle("b", "1802", "1"),
		vehicle("c", "2707", "2"),
	}

	assert.Equal(t, []string{"a"}, ids(Vehicles(all, []string{"1"}, "7")))
}

func TestVehiclesDoesNotMutateInput(t *testing.T) {
	all := []transit.Vehicle{vehicle("a", "1", "1"), vehicle("b", "2", "2")}
	before := append([]transit.Vehicle(nil), all...)

	_ = Vehicles(all, []string{"2"}, "2")
	assert.Equal(t, before, all)
}

func TestVehiclesIdempotent(t *testing.T) {
	all := []transit.Vehicle{vehicle("a", "17", "1"), vehicle("b", "27", "2"), vehicle("c", "7", "1")}
	routes := []string{"1"}

	first := Vehicles(all, routes, "7")
	second := Vehicles(all, routes, "7")
	assert.Equal(t, first, second)
}

func TestStops(t *testing.T) {
	all := []transit.Stop{
		{ID: "100", Code: "1000"},
		{ID: "101", Code: "1010"},
		{ID: "200", Code: "2000"},
		{ID: "300", Code: "3000"},
	}
	services := transit.RouteServiceMap{
		"1": {"100", "101"},
		"2": {"2000"},
		"3": {},
	}

	tests := []struct {
		name   string
		routes []string
		want   []string
	}{
		{"no filter returns all", nil, []string{"100", "101", "200", "300"}},
		{"by id", []string{"1"}, []string{"100", "101"}},
		{"by code", []string{"2"}, []string{"200"}},
		{"union", []string{"1", "2"}, []string{"100", "101", "200"}},
		{"route id trimmed", []string{" 1 "}, []string{"100", "101"}},
		{"absent route contributes nothing", []string{"42"}, []string{}},
		{"empty list contributes nothing", []string{"3"}, []string{}},
		{"absent plus present", []string{"42", "2"}, []string{"200"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stopIDs(Stops(all, tt.routes, services)))
		})
	}
}

func TestStopsIgnoresQueryAndNilMap(t *testing.T) {
	all := []transit.Stop{{ID: "100"}}
	assert.Equal(t, all, Stops(all, nil, nil))
	assert.Empty(t, Stops(all, []string{"1"}, nil))
}

func TestRouteMatches(t *testing.T) {
	assert.True(t, RouteMatches("1", "1"))
	assert.True(t, RouteMatches("01", "1"))
	assert.True(t, RouteMatches("1.0", "1"))
	assert.False(t, RouteMatches("10", "1"))
	assert.False(t, RouteMatches("", "0"))
	assert.False(t, RouteMatches("Inf", "+Inf"))
	assert.True(t, RouteMatches("3A", " 3A"))
}

func TestStateActive(t *testing.T) {
	assert.False(t, State{}.Active())
	assert.False(t, State{Query: "  "}.Active())
	assert.True(t, State{Routes: []string{"1"}}.Active())
	assert.True(t, State{Query: "4"}.Active())
}
