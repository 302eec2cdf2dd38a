package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	setOutputWriter(&buf)
	t.Cleanup(resetOutputWriter)
	return &buf
}

func TestPlanCommandStructure(t *testing.T) {
	assert.NotNil(t, planCmd)
	assert.Equal(t, "plan", planCmd.Use)
	assert.NotEmpty(t, planCmd.Short)
	assert.Contains(t, planCmd.Long, "Example:")
	assert.NotNil(t, planCmd.RunE)
}

func TestPlanIsAddedToRoot(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "plan" {
			found = true
			break
		}
	}
	assert.True(t, found, "plan command should be added to root command")
}

func TestRunPlan(t *testing.T) {
	root, cfgPath := setupProject(t)
	useConfig(t, cfgPath)
	buf := captureOutput(t)

	c, _ := newTestCommand()
	require.NoError(t, runPlan(c, nil))

	out := buf.String()
	assert.Contains(t, out, "Discovery Plan: "+testNamespace)
	assert.Contains(t, out, "[Declarations]")
	assert.Contains(t, out, "TYPE")

	for _, want := range []string{
		"example.com/app/plugins.Echo",
		"included",
		testCapability,
		"example.com/app/plugins.Hidden",
		"opt-out",
		"example.com/app/plugins.Box",
		"concrete[T]",
		"generic",
		"example.com/app/plugins.Plain",
		"no-interfaces",
		"example.com/app/capability.Base",
		"abstract",
		"[1] example.com/app/plugins.Echo",
		"[ Summary ]",
		"Discovered:     1",
		"[ Hierarchy ]",
		"Cycles:         0",
	} {
		assert.Contains(t, out, want)
	}

	assert.NoFileExists(t, registryPath(root), "plan never writes")
}

func TestRunPlan_NoCapability(t *testing.T) {
	root, _ := setupProject(t)
	useConfig(t, writeConfig(t, root, "other.yaml", "example.com/app/capability.Missing"))
	buf := captureOutput(t)

	c, _ := newTestCommand()
	require.NoError(t, runPlan(c, nil))

	out := buf.String()
	assert.Contains(t, out, "no-capability")
	assert.Contains(t, out, "implements "+testCapability)
	assert.Contains(t, out, "(empty)")
}

func TestPrintHeader(t *testing.T) {
	buf := captureOutput(t)

	printHeader("Plan: %s", "x")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Repeat("=", len("Plan: x")+4), lines[0])
	assert.Equal(t, "  Plan: x", lines[1])
	assert.Equal(t, lines[0], lines[2])
}

func TestPrintSection(t *testing.T) {
	buf := captureOutput(t)

	printSection("Summary")
	assert.Equal(t, "[Summary]\n---------\n", buf.String())
}

func TestPrintSideBySide(t *testing.T) {
	buf := captureOutput(t)

	printSideBySide("ab\nabcd\nx", []string{"R1", "R2"}, 2)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ab    R1", lines[0])
	assert.Equal(t, "abcd  R2", lines[1])
	assert.Equal(t, "x", lines[2])
}

func TestPrintSideBySide_RightTaller(t *testing.T) {
	buf := captureOutput(t)

	printSideBySide("a", []string{"R1", "", "R3"}, 1)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a R1", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "  R3", lines[2])
}

func TestVisualWidth(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"型", 2},
		{"a型b", 4},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, visualWidth(tt.in))
		})
	}
}
