package dataset

import (
	"errors"
	"strings"
	"testing"
)

func intp(v int) *int { return &v }

func TestDefaultDatasetIsValid(t *testing.T) {
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if len(d.Lanes) == 0 || len(d.Entities) == 0 || len(d.Relationships) == 0 {
		t.Fatalf("embedded dataset is empty: %d lanes, %d entities, %d relationships",
			len(d.Lanes), len(d.Entities), len(d.Relationships))
	}
	origin, ok := d.Lane("india")
	if !ok || origin.Position != 0 {
		t.Fatalf("origin lane = %+v, %v", origin, ok)
	}
	buddha, ok := d.Entity("buddha")
	if !ok || buddha.Category != Person {
		t.Fatalf("buddha = %+v, %v", buddha, ok)
	}
	if got := d.LaneOf(buddha).Name; got != "India" {
		t.Fatalf("LaneOf(buddha) = %q", got)
	}
}

func TestParseRejectsDanglingReferences(t *testing.T) {
	src := `
lanes:
  - {id: india, name: India, position: 0}
  - {id: lanka, name: Sri Lanka, position: 0}
entities:
  - {id: a, category: Person, name: A, start: -500, lane: india, importance: 11}
  - {id: b, category: Text, name: B, start: 10, end: 5, lane: nowhere}
  - {id: c, name: C, start: 1, lane: india}
relationships:
  - {source: a, target: zzz, kind: transmission}
  - {source: a, target: b, kind: rumour}
`
	_, err := Parse([]byte(src))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Parse err = %v, want ErrInvalid", err)
	}
	for _, want := range []string{
		"2 lanes claim the origin",
		`importance 11 outside`,
		`unknown lane "nowhere"`,
		"end 5 before start 10",
		`entity "c": unknown category`,
		`unknown target "zzz"`,
		`unknown kind "rumour"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestParseRejectsUnknownCategoryName(t *testing.T) {
	src := `
lanes: [{id: india, name: India, position: 0}]
entities: [{id: a, category: Relic, name: A, start: 1, lane: india}]
`
	if _, err := Parse([]byte(src)); err == nil {
		t.Fatal("Parse accepted an unknown category")
	}
}

func TestNewDuplicateIDs(t *testing.T) {
	_, err := New(
		[]Lane{{ID: "x", Name: "X"}},
		[]Entity{
			{ID: "e", Category: Event, Name: "E", Lane: "x"},
			{ID: "e", Category: Event, Name: "E2", Lane: "x"},
		},
		nil,
	)
	if err == nil || !strings.Contains(err.Error(), `duplicate entity id "e"`) {
		t.Fatalf("New err = %v", err)
	}
}

func TestSortedEntitiesIsStable(t *testing.T) {
	d, err := New(
		[]Lane{{ID: "x", Name: "X"}},
		[]Entity{
			{ID: "late", Category: Event, Name: "Late", Start: 900, Lane: "x"},
			{ID: "tie1", Category: Event, Name: "Tie 1", Start: 100, Lane: "x"},
			{ID: "early", Category: Event, Name: "Early", Start: -300, Lane: "x"},
			{ID: "tie2", Category: Event, Name: "Tie 2", Start: 100, Lane: "x"},
		},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, e := range d.SortedEntities() {
		ids = append(ids, e.ID)
	}
	if got := strings.Join(ids, ","); got != "early,tie1,tie2,late" {
		t.Fatalf("SortedEntities order = %s", got)
	}
	if d.Entities[0].ID != "late" {
		t.Fatal("SortedEntities mutated dataset order")
	}
}

func TestPositionRange(t *testing.T) {
	d, err := New([]Lane{
		{ID: "a", Position: 3}, {ID: "b", Position: 0}, {ID: "c", Position: -2},
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	lo, hi := d.PositionRange()
	if lo != -2 || hi != 3 {
		t.Fatalf("PositionRange = %d, %d", lo, hi)
	}
}

func TestEraFormatting(t *testing.T) {
	cases := []struct {
		e    Entity
		want string
	}{
		{Entity{Start: -563}, "563 BCE"},
		{Entity{Start: 0}, "0 CE"},
		{Entity{Start: 1175, End: intp(1262)}, "1175 CE – 1262 CE"},
		{Entity{Start: -304, End: intp(-232)}, "304 BCE – 232 BCE"},
	}
	for _, tc := range cases {
		if got := tc.e.Era(); got != tc.want {
			t.Errorf("Era(%+v) = %q, want %q", tc.e, got, tc.want)
		}
	}
	if got := FormatTick(-199.6); got != "200 BCE" {
		t.Errorf("FormatTick(-199.6) = %q", got)
	}
}

func TestImportanceOr(t *testing.T) {
	if got := (Entity{}).ImportanceOr(DefaultImportance); got != 5 {
		t.Fatalf("ImportanceOr default = %d", got)
	}
	if got := (Entity{Importance: intp(9)}).ImportanceOr(5); got != 9 {
		t.Fatalf("ImportanceOr = %d", got)
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories() {
		got, err := ParseCategory(strings.ToLower(c.String()))
		if err != nil || got != c {
			t.Fatalf("ParseCategory(%q) = %v, %v", c.String(), got, err)
		}
	}
	if Category(0).Valid() {
		t.Fatal("zero Category reported valid")
	}
}
