// Package dataset defines the fixed graph of lanes, entities and
// relationships that the chart lays out.
package dataset

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Importance ranks are bounded. They drive glyph size and level of detail,
// never ordering.
const (
	MinImportance     = 1
	MaxImportance     = 10
	DefaultImportance = 5
)

// ErrInvalid wraps every dataset validation failure.
var ErrInvalid = errors.New("invalid dataset")

//go:embed buddhism.yaml
var defaultData []byte

// Category is the closed set of entity kinds.
type Category int

// Zero is not a category, so an entity without one fails validation.
const (
	Person Category = iota + 1
	Text
	School
	Event
)

var categoryNames = [...]string{"Person", "Text", "School", "Event"}

// Categories returns the legend order.
func Categories() []Category { return []Category{Person, Text, School, Event} }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c-1]
}

// Valid reports whether c is one of the four kinds.
func (c Category) Valid() bool { return c >= Person && c <= Event }

// ParseCategory matches a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Category(i + 1), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

func (c Category) MarshalYAML() (any, error) { return c.String(), nil }

func (c *Category) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := ParseCategory(n.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// RelationKind distinguishes direct transmission from indirect influence.
type RelationKind string

const (
	Transmission RelationKind = "transmission"
	Influence    RelationKind = "influence"
)

func (k RelationKind) Valid() bool { return k == Transmission || k == Influence }

// Lane is a horizontal track for one region. Position 0 is the point of
// origin; positive positions spread north, negative south.
type Lane struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Position int    `yaml:"position"`
	Icon     string `yaml:"icon,omitempty"`
}

// Entity is a person, text, school or event. Years are signed; negative
// years are BCE.
type Entity struct {
	ID          string   `yaml:"id"`
	Category    Category `yaml:"category"`
	Name        string   `yaml:"name"`
	Start       int      `yaml:"start"`
	End         *int     `yaml:"end,omitempty"`
	Lane        string   `yaml:"lane"`
	Description string   `yaml:"description,omitempty"`
	Importance  *int     `yaml:"importance,omitempty"`
}

// ImportanceOr returns the entity's rank or def when it has none.
func (e Entity) ImportanceOr(def int) int {
	if e.Importance == nil {
		return def
	}
	return *e.Importance
}

// HasSpan reports whether the entity covers a period rather than an instant.
func (e Entity) HasSpan() bool { return e.End != nil }

// Era formats the entity's dates, e.g. "563 BCE" or "1175 CE – 1262 CE".
func (e Entity) Era() string {
	if e.End == nil {
		return FormatYear(e.Start)
	}
	return FormatYear(e.Start) + " – " + FormatYear(*e.End)
}

// FormatYear renders a signed year with an era suffix.
func FormatYear(y int) string {
	if y < 0 {
		return fmt.Sprintf("%d BCE", -y)
	}
	return fmt.Sprintf("%d CE", y)
}

// FormatTick is FormatYear for axis tick values.
func FormatTick(v float64) string {
	return FormatYear(int(math.Round(v)))
}

// Relationship is a directed connector between two entities.
type Relationship struct {
	Source string       `yaml:"source"`
	Target string       `yaml:"target"`
	Kind   RelationKind `yaml:"kind"`
}

// Dataset is the immutable input graph.
type Dataset struct {
	Lanes         []Lane         `yaml:"lanes"`
	Entities      []Entity       `yaml:"entities"`
	Relationships []Relationship `yaml:"relationships"`

	lanes    map[string]int
	entities map[string]int
}

// Default returns the embedded history of Buddhism dataset.
func Default() (*Dataset, error) {
	d, err := Parse(defaultData)
	if err != nil {
		return nil, fmt.Errorf("embedded dataset: %w", err)
	}
	return d, nil
}

// Load reads and validates a dataset YAML file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading dataset file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates dataset YAML.
func Parse(data []byte) (*Dataset, error) {
	var d Dataset
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("error parsing dataset: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// New builds a dataset from in-process values and validates it.
func New(lanes []Lane, entities []Entity, rels []Relationship) (*Dataset, error) {
	d := &Dataset{Lanes: lanes, Entities: entities, Relationships: rels}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks every reference and range and builds the lookup indexes.
// All violations are reported together.
func (d *Dataset) Validate() error {
	var errs []error
	if len(d.Lanes) == 0 {
		errs = append(errs, errors.New("no lanes"))
	}

	d.lanes = make(map[string]int, len(d.Lanes))
	origins := 0
	for i, l := range d.Lanes {
		if l.ID == "" {
			errs = append(errs, fmt.Errorf("lane %d has no id", i))
			continue
		}
		if _, dup := d.lanes[l.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate lane id %q", l.ID))
			continue
		}
		d.lanes[l.ID] = i
		if l.Position == 0 {
			origins++
		}
	}
	if origins > 1 {
		errs = append(errs, fmt.Errorf("%d lanes claim the origin position 0", origins))
	}

	d.entities = make(map[string]int, len(d.Entities))
	for i, e := range d.Entities {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("entity %d has no id", i))
			continue
		}
		if _, dup := d.entities[e.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate entity id %q", e.ID))
			continue
		}
		d.entities[e.ID] = i
		if !e.Category.Valid() {
			errs = append(errs, fmt.Errorf("entity %q: unknown category %d", e.ID, int(e.Category)))
		}
		if _, ok := d.lanes[e.Lane]; !ok {
			errs = append(errs, fmt.Errorf("entity %q: unknown lane %q", e.ID, e.Lane))
		}
		if e.Importance != nil && (*e.Importance < MinImportance || *e.Importance > MaxImportance) {
			errs = append(errs, fmt.Errorf("entity %q: importance %d outside [%d, %d]", e.ID, *e.Importance, MinImportance, MaxImportance))
		}
		if e.End != nil && *e.End < e.Start {
			errs = append(errs, fmt.Errorf("entity %q: end %d before start %d", e.ID, *e.End, e.Start))
		}
	}

	for i, r := range d.Relationships {
		if _, ok := d.entities[r.Source]; !ok {
			errs = append(errs, fmt.Errorf("relationship %d: unknown source %q", i, r.Source))
		}
		if _, ok := d.entities[r.Target]; !ok {
			errs = append(errs, fmt.Errorf("relationship %d: unknown target %q", i, r.Target))
		}
		if !r.Kind.Valid() {
			errs = append(errs, fmt.Errorf("relationship %d: unknown kind %q", i, r.Kind))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Lane looks up a lane by id.
func (d *Dataset) Lane(id string) (Lane, bool) {
	i, ok := d.lanes[id]
	if !ok {
		return Lane{}, false
	}
	return d.Lanes[i], true
}

// Entity looks up an entity by id.
func (d *Dataset) Entity(id string) (Entity, bool) {
	i, ok := d.entities[id]
	if !ok {
		return Entity{}, false
	}
	return d.Entities[i], true
}

// LaneOf returns the lane an entity belongs to. Validation guarantees it
// exists for every entity of the dataset.
func (d *Dataset) LaneOf(e Entity) Lane {
	l, _ := d.Lane(e.Lane)
	return l
}

// PositionRange returns the lowest and highest lane positions.
func (d *Dataset) PositionRange() (lo, hi int) {
	for i, l := range d.Lanes {
		if i == 0 || l.Position < lo {
			lo = l.Position
		}
		if i == 0 || l.Position > hi {
			hi = l.Position
		}
	}
	return lo, hi
}

// SortedEntities returns the entities ordered by start year. The sort is
// stable so entities sharing a year keep dataset order.
func (d *Dataset) SortedEntities() []Entity {
	out := make([]Entity, len(d.Entities))
	copy(out, d.Entities)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
