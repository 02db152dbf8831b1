package huebot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexColor(t *testing.T) {
	t.Parallel()

	color, err := ParseHexColor("#DC143C")
	require.NoError(t, err)
	assert.Equal(t, 0xDC143C, color)

	color, err = ParseHexColor("ff8c00")
	require.NoError(t, err)
	assert.Equal(t, 0xFF8C00, color)

	for _, bad := range []string{"", "#fff", "#GGGGGG", "red", "#1234567"} {
		_, err = ParseHexColor(bad)
		assert.Errorf(t, err, "expected error for %q", bad)
	}
}

func TestLoadPaletteDefault(t *testing.T) {
	t.Parallel()

	tasks, err := LoadPalette("")
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	seen := map[string]bool{}
	for _, task := range tasks {
		assert.NotEmpty(t, task.Name)
		assert.False(t, seen[task.Name], "duplicate name %q", task.Name)
		seen[task.Name] = true
	}
	assert.True(t, seen["Crimson"])
}

func TestLoadPaletteFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "palette.yaml")
	require.NoError(
		t, os.WriteFile(
			path, []byte(`roles:
  - name: Red
    color: "#FF0000"
  - name: Blue
    color: "0000FF"
`), 0600,
		),
	)

	tasks, err := LoadPalette(path)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, RoleTask{Name: "Red", Color: 0xFF0000}, tasks[0])
	assert.Equal(t, RoleTask{Name: "Blue", Color: 0x0000FF}, tasks[1])
}

func TestLoadPaletteMissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadPalette(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestParsePaletteErrors(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"empty":     `roles: []`,
		"no name":   "roles:\n  - name: \"\"\n    color: \"#FF0000\"",
		"duplicate": "roles:\n  - name: Red\n    color: \"#FF0000\"\n  - name: Red\n    color: \"#00FF00\"",
		"bad color": "roles:\n  - name: Red\n    color: \"red\"",
		"bad yaml":  `{{{`,
	} {
		t.Run(
			name, func(t *testing.T) {
				_, err := parsePalette([]byte(content))
				assert.Error(t, err)
			},
		)
	}
}
