// Package markers parses the {type|value|label} citation spans the
// summary module embeds in its narrative and renders them for display.
package markers

import (
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

var markerPattern = regexp.MustCompile(`\{(\w+)\|([^}|]+)(?:\|([^}]+))?\}`)

// Badge is the presentation config for one marker type.
type Badge struct {
	Icon     string `yaml:"icon"`
	CSSClass string `yaml:"css_class"`
}

var defaultBadges = map[string]Badge{
	string(domain.MarkerColor):       {Icon: "palette", CSSClass: "marker-color"},
	string(domain.MarkerTechnique):   {Icon: "brush", CSSClass: "marker-technique"},
	string(domain.MarkerComposition): {Icon: "layers", CSSClass: "marker-composition"},
	string(domain.MarkerMood):        {Icon: "heart", CSSClass: "marker-mood"},
	string(domain.MarkerEra):         {Icon: "clock", CSSClass: "marker-era"},
	string(domain.MarkerArtist):      {Icon: "user", CSSClass: "marker-artist"},
}

var genericBadge = Badge{Icon: "info", CSSClass: "marker-generic"}

// Parser turns raw summary text into a RichSummary.
type Parser struct {
	badges map[string]Badge
}

func NewParser() *Parser {
	badges := make(map[string]Badge, len(defaultBadges))
	for k, v := range defaultBadges {
		badges[k] = v
	}
	return &Parser{badges: badges}
}

// NewParserFromFile overlays badge config from a YAML file
// (type → {icon, css_class}) on top of the defaults. An empty path
// yields the default parser.
func NewParserFromFile(path string) (*Parser, error) {
	p := NewParser()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read marker config: %w", err)
	}
	overrides := make(map[string]Badge)
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse marker config: %w", err)
	}
	for name, badge := range overrides {
		merged := p.badgeFor(name)
		if badge.Icon != "" {
			merged.Icon = badge.Icon
		}
		if badge.CSSClass != "" {
			merged.CSSClass = badge.CSSClass
		}
		p.badges[strings.ToLower(name)] = merged
	}
	return p, nil
}

// Parse extracts all markers and produces every rendering the
// presentation layer needs. The input should already be
// reasoning-stripped.
func (p *Parser) Parse(text string) domain.RichSummary {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	parsed := make([]domain.Marker, 0, len(matches))
	for _, match := range matches {
		parsed = append(parsed, p.markerFromMatch(match))
	}

	clean := markerPattern.ReplaceAllStringFunc(text, func(raw string) string {
		m := p.markerFromMatch(markerPattern.FindStringSubmatch(raw))
		return m.Label
	})

	htmlText := markerPattern.ReplaceAllStringFunc(text, func(raw string) string {
		m := p.markerFromMatch(markerPattern.FindStringSubmatch(raw))
		return renderSpan(m)
	})

	return domain.RichSummary{
		RawText:     text,
		CleanText:   clean,
		HTMLText:    htmlText,
		Markers:     parsed,
		MarkerCount: len(parsed),
	}
}

func (p *Parser) markerFromMatch(match []string) domain.Marker {
	markerType := strings.ToLower(match[1])
	value := strings.TrimSpace(match[2])
	label := value
	if match[3] != "" {
		label = strings.TrimSpace(match[3])
	}
	badge := p.badgeFor(markerType)
	return domain.Marker{
		Type:     domain.MarkerType(markerType),
		Value:    value,
		Label:    label,
		Icon:     badge.Icon,
		CSSClass: badge.CSSClass,
	}
}

func (p *Parser) badgeFor(markerType string) Badge {
	if badge, ok := p.badges[strings.ToLower(markerType)]; ok {
		return badge
	}
	return genericBadge
}

func renderSpan(m domain.Marker) string {
	value := html.EscapeString(m.Value)
	label := html.EscapeString(m.Label)

	if m.Type == domain.MarkerColor && strings.HasPrefix(m.Value, "#") {
		return fmt.Sprintf(
			`<span class="inline-marker %s" data-type="%s" data-value="%s"><span class="color-swatch" style="background-color:%s"></span>%s</span>`,
			m.CSSClass, m.Type, value, value, label,
		)
	}
	return fmt.Sprintf(
		`<span class="inline-marker %s" data-type="%s" data-value="%s" data-icon="%s">%s</span>`,
		m.CSSClass, m.Type, value, m.Icon, label,
	)
}

// ColorValues lists the hex colors cited by the markers.
func ColorValues(parsed []domain.Marker) []string {
	var colors []string
	for _, m := range parsed {
		if m.Type == domain.MarkerColor && strings.HasPrefix(m.Value, "#") {
			colors = append(colors, m.Value)
		}
	}
	return colors
}
