// Package config holds the YAML configuration for chart rendering, zoom
// behaviour, level of detail, the summary and narration gateway and the HTTP host.
//
// Every field has a default (see Default). A YAML file only needs to carry
// the values it overrides:
//
//	layout:
//	  width: 1600
//	  row_height: 120
//	zoom:
//	  initial: 1.2
//	lod:
//	  bands:
//	    - {below_zoom: 1.0, min_importance: 9}
//	    - {below_zoom: 2.0, min_importance: 6}
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete configuration.
type Config struct {
	Font     Font     `yaml:"font"`
	Colors   Colors   `yaml:"colors"`
	Layout   Layout   `yaml:"layout"`
	Nodes    Nodes    `yaml:"nodes"`
	Zoom     Zoom     `yaml:"zoom"`
	LOD      LOD      `yaml:"lod"`
	Emphasis Emphasis `yaml:"emphasis"`
	Gateway  Gateway  `yaml:"gateway"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Tracing  Tracing  `yaml:"tracing"`
}

type Font struct {
	Family    string `yaml:"family"`     // Font family for labels and axes
	LabelSize int    `yaml:"label_size"` // Entity label size in pixels
	AxisSize  int    `yaml:"axis_size"`  // Time axis tick size in pixels
	LaneSize  int    `yaml:"lane_size"`  // Lane name size in pixels
}

// Colors are hex colour codes. Category colours key the glyph table.
type Colors struct {
	Background     string `yaml:"background"`
	Grid           string `yaml:"grid"`
	LaneLine       string `yaml:"lane_line"`
	OriginGuide    string `yaml:"origin_guide"`
	AxisBackground string `yaml:"axis_background"`
	AxisText       string `yaml:"axis_text"`
	AxisTick       string `yaml:"axis_tick"`
	Corner         string `yaml:"corner"`
	LaneText       string `yaml:"lane_text"`
	Active         string `yaml:"active"` // Emphasis colour of the active entity
	Transmission   string `yaml:"transmission"`
	Influence      string `yaml:"influence"`
	Person         string `yaml:"person"`
	Text           string `yaml:"text"`
	School         string `yaml:"school"`
	Event          string `yaml:"event"`
}

type Layout struct {
	Width          int     `yaml:"width"`            // Viewport width in pixels
	Height         int     `yaml:"height"`           // Viewport height in pixels
	MarginTop      int     `yaml:"margin_top"`       // Reserved for the time axis
	MarginRight    int     `yaml:"margin_right"`
	MarginBottom   int     `yaml:"margin_bottom"`
	MarginLeft     int     `yaml:"margin_left"`      // Reserved for the lane axis
	RowHeight      int     `yaml:"row_height"`       // Vertical distance between adjacent lanes
	LanePadding    float64 `yaml:"lane_padding"`     // Extra lane units above the first and below the last lane
	TimeStart      int     `yaml:"time_start"`       // First year of the base time domain
	TimeEnd        int     `yaml:"time_end"`         // Last year of the base time domain
	XRangeFactor   float64 `yaml:"x_range_factor"`   // Base X range ends at width*factor
	GridSpacing    int     `yaml:"grid_spacing"`     // Approximate pixels between vertical grid lines
	AxisSpacing    int     `yaml:"axis_spacing"`     // Approximate pixels between time axis ticks
	LaneIconSize   int     `yaml:"lane_icon_size"`   // Lane icon edge in pixels
	LaneIconURLFmt string  `yaml:"lane_icon_url"`    // printf pattern taking the lane icon code
	CornerTitle    string  `yaml:"corner_title"`     // Text in the top-left corner
	OriginGuideW   int     `yaml:"origin_guide_width"` // Stroke width of the origin lane guide
}

type Nodes struct {
	DefaultImportance int     `yaml:"default_importance"`  // Used when an entity has no rank
	BaseSize          float64 `yaml:"base_size"`           // size = importance*per_importance + base
	SizePerImportance float64 `yaml:"size_per_importance"`
	LeaderExtension   float64 `yaml:"leader_extension"`    // Leader length past the glyph edge
	MinNodeScale      float64 `yaml:"min_node_scale"`      // Lower clamp of sqrt(k)
	MaxNodeScale      float64 `yaml:"max_node_scale"`      // Upper clamp of sqrt(k)
	SchoolBaseWidth   float64 `yaml:"school_base_width"`   // Span width for schools without an end year
	MinSchoolWidth    float64 `yaml:"min_school_width"`    // Lower bound of a school span in pixels
	LabelAngle        float64 `yaml:"label_angle"`         // Label rotation in degrees
}

type Zoom struct {
	Initial            float64 `yaml:"initial"`              // Scale applied after the first render
	Min                float64 `yaml:"min"`
	Max                float64 `yaml:"max"`
	ExtentLeft         float64 `yaml:"extent_left"`          // World extent, top-left corner
	ExtentTop          float64 `yaml:"extent_top"`
	ExtentWidthFactor  float64 `yaml:"extent_width_factor"`  // World extent right edge = width*factor
	ExtentHeightFactor float64 `yaml:"extent_height_factor"` // World extent bottom edge = height*factor
	WheelStep          float64 `yaml:"wheel_step"`           // Scale factor of one wheel notch
}

// Band maps zoom scales below BelowZoom to a minimum importance.
type Band struct {
	BelowZoom     float64 `yaml:"below_zoom"`
	MinImportance int     `yaml:"min_importance"`
}

type LOD struct {
	Bands []Band `yaml:"bands"`
}

type Emphasis struct {
	DimOpacity         float64 `yaml:"dim_opacity"`          // Nodes and labels outside the category filter
	LinkDimOpacity     float64 `yaml:"link_dim_opacity"`     // Connectors while a filter is active
	TransmissionAlpha  float64 `yaml:"transmission_opacity"`
	InfluenceAlpha     float64 `yaml:"influence_opacity"`
	LinkWidth          float64 `yaml:"link_width"`
	ActiveLinkWidth    float64 `yaml:"active_link_width"`
	NodeStroke         float64 `yaml:"node_stroke"`
	ActiveNodeStroke   float64 `yaml:"active_node_stroke"`
	LeaderWidth        float64 `yaml:"leader_width"`
	ActiveLeaderWidth  float64 `yaml:"active_leader_width"`
	DotRadius          float64 `yaml:"dot_radius"`
	ActiveDotRadius    float64 `yaml:"active_dot_radius"`
	SchoolStrokeAlpha  float64 `yaml:"school_stroke_opacity"`
}

type Gateway struct {
	BaseURL      string `yaml:"base_url"`
	SummaryModel string `yaml:"summary_model"`
	SpeechModel  string `yaml:"speech_model"`
	Voice        string `yaml:"voice"`
	APIKey       string `yaml:"-"` // only ever read from the environment
}

type Server struct {
	Addr        string        `yaml:"addr"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxSessions int           `yaml:"max_sessions"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used when no file is given: 90/50/50/180
// margins, 100px lanes, a -600..2000 time domain stretched to 2.5 viewport
// widths, zoom 0.1..8 starting at 0.85, and five level of detail bands.
func Default() Config {
	return Config{
		Font: Font{
			Family:    "ui-sans-serif, system-ui, sans-serif",
			LabelSize: 14,
			AxisSize:  11,
			LaneSize:  12,
		},
		Colors: Colors{
			Background:     "#fafaf9",
			Grid:           "#e5e5e5",
			LaneLine:       "#f0f0f0",
			OriginGuide:    "#fbbf24",
			AxisBackground: "#f5f5f4",
			AxisText:       "#44403c",
			AxisTick:       "#a8a29e",
			Corner:         "#e7e5e4",
			LaneText:       "#1c1917",
			Active:         "#1c1917",
			Transmission:   "#d97706",
			Influence:      "#78716c",
			Person:         "#0284c7",
			Text:           "#059669",
			School:         "#7c3aed",
			Event:          "#d97706",
		},
		Layout: Layout{
			Width:          1400,
			Height:         900,
			MarginTop:      90,
			MarginRight:    50,
			MarginBottom:   50,
			MarginLeft:     180,
			RowHeight:      100,
			LanePadding:    0.8,
			TimeStart:      -600,
			TimeEnd:        2000,
			XRangeFactor:   2.5,
			GridSpacing:    150,
			AxisSpacing:    120,
			LaneIconSize:   32,
			LaneIconURLFmt: "https://cdn.jsdelivr.net/gh/djaiss/mapsicon@master/all/%s/vector.svg",
			CornerTitle:    "Timeline",
			OriginGuideW:   4,
		},
		Nodes: Nodes{
			DefaultImportance: 5,
			BaseSize:          4,
			SizePerImportance: 1.5,
			LeaderExtension:   35,
			MinNodeScale:      0.5,
			MaxNodeScale:      2.5,
			SchoolBaseWidth:   40,
			MinSchoolWidth:    20,
			LabelAngle:        -45,
		},
		Zoom: Zoom{
			Initial:            0.85,
			Min:                0.1,
			Max:                8,
			ExtentLeft:         -4000,
			ExtentTop:          -2000,
			ExtentWidthFactor:  10,
			ExtentHeightFactor: 10,
			WheelStep:          1.2,
		},
		LOD: LOD{Bands: []Band{
			{BelowZoom: 0.7, MinImportance: 10},
			{BelowZoom: 1.1, MinImportance: 8},
			{BelowZoom: 1.6, MinImportance: 7},
			{BelowZoom: 2.2, MinImportance: 6},
		}},
		Emphasis: Emphasis{
			DimOpacity:        0.1,
			LinkDimOpacity:    0.05,
			TransmissionAlpha: 0.7,
			InfluenceAlpha:    0.6,
			LinkWidth:         1.5,
			ActiveLinkWidth:   3,
			NodeStroke:        2,
			ActiveNodeStroke:  3,
			LeaderWidth:       1,
			ActiveLeaderWidth: 2,
			DotRadius:         1.5,
			ActiveDotRadius:   2.5,
			SchoolStrokeAlpha: 0.5,
		},
		Gateway: Gateway{
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
			SummaryModel: "gemini-2.5-flash",
			SpeechModel:  "gemini-2.5-flash-preview-tts",
			Voice:        "Kore",
		},
		Server: Server{
			Addr:        ":8080",
			SessionTTL:  30 * time.Minute,
			MaxSessions: 256,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Tracing: Tracing{
			ServiceName: "dharmatimeline",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load reads configuration from a YAML file on top of Default, or returns
// Default when path is empty. The environment overlay is applied in both
// cases and the result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. A missing file
// is not an error; the returned bool reports whether anything was loaded.
func LoadDotEnv(files ...string) bool {
	if err := godotenv.Load(files...); err != nil {
		return false
	}
	return true
}

// ApplyEnv overlays credentials and deployment settings from the
// environment. GEMINI_API_KEY wins over the older API_KEY name.
func (c *Config) ApplyEnv() {
	c.Gateway.APIKey = firstEnv("GEMINI_API_KEY", "API_KEY")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("DHARMA_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DHARMA_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = b
		}
	}
	if v := os.Getenv("DHARMA_TRACING_EXPORTER"); v != "" {
		c.Tracing.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("DHARMA_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	l := c.Layout
	if l.Width <= l.MarginLeft+l.MarginRight {
		errs = append(errs, fmt.Errorf("layout.width %d leaves no room inside margins", l.Width))
	}
	if l.Height <= l.MarginTop+l.MarginBottom {
		errs = append(errs, fmt.Errorf("layout.height %d leaves no room inside margins", l.Height))
	}
	if l.RowHeight <= 0 {
		errs = append(errs, fmt.Errorf("layout.row_height must be positive"))
	}
	if l.TimeEnd <= l.TimeStart {
		errs = append(errs, fmt.Errorf("layout.time_end %d must be after time_start %d", l.TimeEnd, l.TimeStart))
	}
	if l.XRangeFactor <= 0 {
		errs = append(errs, fmt.Errorf("layout.x_range_factor must be positive"))
	}
	z := c.Zoom
	if z.Min <= 0 || z.Max < z.Min {
		errs = append(errs, fmt.Errorf("zoom extent [%g, %g] is not a valid range", z.Min, z.Max))
	}
	if z.Initial < z.Min || z.Initial > z.Max {
		errs = append(errs, fmt.Errorf("zoom.initial %g outside [%g, %g]", z.Initial, z.Min, z.Max))
	}
	if z.WheelStep <= 1 {
		errs = append(errs, fmt.Errorf("zoom.wheel_step must be greater than 1"))
	}
	if c.Nodes.MinNodeScale <= 0 || c.Nodes.MaxNodeScale < c.Nodes.MinNodeScale {
		errs = append(errs, fmt.Errorf("nodes scale clamp [%g, %g] is not a valid range", c.Nodes.MinNodeScale, c.Nodes.MaxNodeScale))
	}
	for i := 1; i < len(c.LOD.Bands); i++ {
		prev, cur := c.LOD.Bands[i-1], c.LOD.Bands[i]
		if cur.BelowZoom <= prev.BelowZoom || cur.MinImportance > prev.MinImportance {
			errs = append(errs, fmt.Errorf("lod.bands[%d] is not monotonic after bands[%d]", i, i-1))
		}
	}
	if c.Server.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions must be positive"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// HasAPIKey reports whether gateway calls can be attempted at all.
func (c Config) HasAPIKey() bool { return c.Gateway.APIKey != "" }
