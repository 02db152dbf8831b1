package huebot

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed palette.yaml
var defaultPalette []byte

var hexColorPattern = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// RoleTask is one role-creation request: a role name and its color.
// Tasks are immutable once enqueued, and unique by Name within a run.
type RoleTask struct {
	Name  string
	Color int
}

func (t RoleTask) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", t.Name),
		slog.String("color", fmt.Sprintf("#%06X", t.Color)),
	)
}

// paletteFile is the on-disk shape of the role-definition file.
type paletteFile struct {
	Roles []paletteEntry `yaml:"roles"`
}

type paletteEntry struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// ParseHexColor converts a `#RRGGBB` (or `RRGGBB`) string to the integer
// color value the Discord API expects.
func ParseHexColor(s string) (int, error) {
	if !hexColorPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid hex color: %q", s)
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return int(v), nil
}

// LoadPalette reads the role-definition file at the given path. An empty
// path loads the embedded default palette.
func LoadPalette(path string) ([]RoleTask, error) {
	data := defaultPalette
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading palette file: %w", err)
		}
		data = fileData
	}
	return parsePalette(data)
}

func parsePalette(data []byte) ([]RoleTask, error) {
	var pf paletteFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("error parsing palette file: %w", err)
	}
	if len(pf.Roles) == 0 {
		return nil, fmt.Errorf("palette file defines no roles")
	}

	tasks := make([]RoleTask, 0, len(pf.Roles))
	seen := make(map[string]bool, len(pf.Roles))
	for i, entry := range pf.Roles {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("palette entry %d: name is empty", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("palette entry %d: duplicate name %q", i, name)
		}
		seen[name] = true

		color, err := ParseHexColor(entry.Color)
		if err != nil {
			return nil, fmt.Errorf("palette entry %d (%s): %w", i, name, err)
		}
		tasks = append(tasks, RoleTask{Name: name, Color: color})
	}
	return tasks, nil
}

// paletteNames returns the set of role names in the palette, used to
// decide which of a member's roles count as color roles.
func paletteNames(tasks []RoleTask) map[string]bool {
	names := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		names[t.Name] = true
	}
	return names
}
