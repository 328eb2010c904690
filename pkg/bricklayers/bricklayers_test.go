package bricklayers

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runProcessor(t *testing.T, opts Options, input string) (string, Stats) {
	t.Helper()
	p, err := New(opts)
	require.NoError(t, err)

	var sb strings.Builder
	stats, err := p.Process(strings.NewReader(input), func(line string) error {
		sb.WriteString(line)
		return nil
	})
	require.NoError(t, err)
	return sb.String(), stats
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{ExtrusionMultiplier: 0})
	assert.Error(t, err)

	_, err = New(Options{ExtrusionMultiplier: 1.05, StartAtLayer: -1})
	assert.Error(t, err)
}

func TestProcess_MultiplierFromLayerZero(t *testing.T) {
	input := "G1 X0 Y0 Z0.2 E1.00000 F1800\n"
	out, stats := runProcessor(t, Options{ExtrusionMultiplier: 1.05, StartAtLayer: 0}, input)

	assert.Equal(t, "G1 X0 Y0 Z0.2 E1.05000 F1800\n", out)
	assert.Equal(t, int64(1), stats.Lines)
	assert.Equal(t, int64(1), stats.Adjusted)
}

func TestProcess_LayersBeforeStartUntouched(t *testing.T) {
	input := strings.Join([]string{
		"G1 X0 Y0 E1.00000",
		";LAYER_CHANGE",
		"G1 X1 Y1 E1.00000",
		";LAYER_CHANGE",
		"G1 X2 Y2 E1.00000",
		"",
	}, "\n")

	out, stats := runProcessor(t, Options{ExtrusionMultiplier: 1.10, StartAtLayer: 2}, input)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "G1 X0 Y0 E1.00000", lines[0])
	assert.Equal(t, "G1 X1 Y1 E1.00000", lines[2])
	assert.Equal(t, "G1 X2 Y2 E1.10000", lines[4])
	assert.Equal(t, 2, stats.Layers)
	assert.Equal(t, int64(1), stats.Adjusted)
}

func TestProcess_RetractionsUntouched(t *testing.T) {
	input := "G1 E-0.80000 F2100\n"
	out, stats := runProcessor(t, Options{ExtrusionMultiplier: 1.2, StartAtLayer: 0}, input)

	assert.Equal(t, input, out)
	assert.Equal(t, int64(0), stats.Adjusted)
}

func TestProcess_NonPrintMovesUntouched(t *testing.T) {
	input := strings.Join([]string{
		"M104 S210",
		"G0 X10 Y10",
		"; comment with E123",
		"G92 E0",
		"",
	}, "\n")

	out, _ := runProcessor(t, Options{ExtrusionMultiplier: 1.2, StartAtLayer: 0}, input)
	assert.Equal(t, input, out)
}

func TestProcess_PrecisionFollowsInput(t *testing.T) {
	out, _ := runProcessor(t, Options{ExtrusionMultiplier: 1.5, StartAtLayer: 0}, "G1 E2.0\n")
	assert.Equal(t, "G1 E3.0\n", out)

	// Integer-valued originals get full precision
	out, _ = runProcessor(t, Options{ExtrusionMultiplier: 1.05, StartAtLayer: 0}, "G1 E2\n")
	assert.Equal(t, "G1 E2.10000\n", out)
}

func TestProcess_NoTrailingNewline(t *testing.T) {
	out, stats := runProcessor(t, Options{ExtrusionMultiplier: 1.05, StartAtLayer: 0}, "G1 E1.0")
	assert.Equal(t, "G1 E1.1", out)
	assert.Equal(t, int64(1), stats.Lines)
}

func TestProcess_Deterministic(t *testing.T) {
	input := strings.Repeat(";LAYER_CHANGE\nG1 X1 Y2 Z0.4 E0.04321 F1800\n", 100)
	opts := Options{ExtrusionMultiplier: 1.07, StartAtLayer: 3}

	out1, stats1 := runProcessor(t, opts, input)
	out2, stats2 := runProcessor(t, opts, input)

	assert.Equal(t, out1, out2)
	assert.Equal(t, stats1, stats2)
}

func TestProcess_EmitErrorAborts(t *testing.T) {
	p, err := New(Options{ExtrusionMultiplier: 1.05, StartAtLayer: 0})
	require.NoError(t, err)

	stop := errors.New("stop")
	emitted := 0
	_, err = p.Process(strings.NewReader("G1 E1\nG1 E2\nG1 E3\n"), func(string) error {
		emitted++
		if emitted == 2 {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, emitted)
}
