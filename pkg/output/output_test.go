package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableTo(&buf).
		WithHeaders("NAME", "PARENT").
		AddRow("web01", "profile/p1").
		AddRow("db", "profile/p2").
		Render())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "NAME   PARENT", lines[0])
	assert.Equal(t, "----   ------", lines[1])
	assert.Equal(t, "web01  profile/p1", lines[2])
	assert.Equal(t, "db     profile/p2", lines[3])
}

func TestYAMLTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, YAMLTo(&buf, map[string]interface{}{"name": "web01", "netboot": true}))
	assert.Contains(t, buf.String(), "name: web01")
	assert.Contains(t, buf.String(), "netboot: true")
}
