// Package bricklayers implements the G-code post-processing transform
// applied to uploaded files.
//
// The processor consumes a line-oriented G-code stream in a single pass
// and rewrites extrusion amounts on print moves starting from a
// configured layer. It is deterministic: the same input and options
// always produce the same output.
package bricklayers

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Options configures a Processor.
type Options struct {
	// ExtrusionMultiplier scales extrusion amounts on print moves.
	// Must be within [1.0, 1.2] in the service configuration; the
	// processor itself accepts any positive value.
	ExtrusionMultiplier float64

	// StartAtLayer is the first layer (zero-based) the multiplier
	// applies to. Earlier layers pass through unchanged.
	StartAtLayer int

	// Verbosity controls how much the processor reports in Stats.
	// Currently only 0 (silent) and >0 (count layers) differ.
	Verbosity int
}

// Stats summarizes one processing run.
type Stats struct {
	// Lines is the total number of lines emitted.
	Lines int64

	// Layers is the number of layer changes seen.
	Layers int

	// Adjusted is the number of extrusion words rewritten.
	Adjusted int64
}

// Processor rewrites a G-code stream according to its Options.
type Processor struct {
	opts Options
}

var (
	printMove     = regexp.MustCompile(`^G1[ \t]`)
	extrusionWord = regexp.MustCompile(`E(-?[0-9]+(?:\.[0-9]+)?)`)
)

// layerChangeMarker is emitted by slicers before each new layer.
const layerChangeMarker = ";LAYER_CHANGE"

// New creates a Processor. ExtrusionMultiplier must be positive and
// StartAtLayer non-negative.
func New(opts Options) (*Processor, error) {
	if opts.ExtrusionMultiplier <= 0 {
		return nil, fmt.Errorf("extrusion multiplier must be positive, got %g", opts.ExtrusionMultiplier)
	}
	if opts.StartAtLayer < 0 {
		return nil, fmt.Errorf("start layer must be non-negative, got %d", opts.StartAtLayer)
	}
	return &Processor{opts: opts}, nil
}

// Process reads G-code lines from r and calls emit for each output
// line. Lines keep their trailing newline except possibly the last.
//
// emit returning an error aborts the run immediately and Process
// returns that error unchanged; callers use this for cooperative
// cancellation. The returned Stats are valid on success only.
func (p *Processor) Process(r io.Reader, emit func(line string) error) (Stats, error) {
	var stats Stats

	// Layer counting starts at 0; the first LAYER_CHANGE moves to layer 1.
	// The multiplier applies once the current layer reaches StartAtLayer,
	// so StartAtLayer=0 rewrites the whole file.
	layer := 0

	br := bufio.NewReader(r)
	for {
		line, rerr := br.ReadString('\n')
		if len(line) > 0 {
			if strings.HasPrefix(line, layerChangeMarker) {
				layer++
				stats.Layers++
			}

			out := line
			if layer >= p.opts.StartAtLayer && printMove.MatchString(line) {
				var adjusted int
				out, adjusted = p.rewriteExtrusion(line)
				stats.Adjusted += int64(adjusted)
			}

			if err := emit(out); err != nil {
				return stats, err
			}
			stats.Lines++
		}

		if rerr == io.EOF {
			return stats, nil
		}
		if rerr != nil {
			return stats, fmt.Errorf("failed to read G-code stream: %w", rerr)
		}
	}
}

// rewriteExtrusion scales every positive E word on the line by the
// multiplier. Negative amounts are retractions and pass through
// unchanged. The rewritten value keeps the decimal precision of the
// original token.
func (p *Processor) rewriteExtrusion(line string) (string, int) {
	adjusted := 0
	out := extrusionWord.ReplaceAllStringFunc(line, func(word string) string {
		raw := word[1:]
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return word
		}
		adjusted++
		return "E" + formatLike(v*p.opts.ExtrusionMultiplier, raw)
	})
	return out, adjusted
}

// formatLike formats v with the same number of decimal places as the
// original token, with a floor of 5 for integer-valued originals so
// scaled amounts do not lose precision.
func formatLike(v float64, original string) string {
	decimals := 5
	if i := strings.IndexByte(original, '.'); i >= 0 {
		decimals = len(original) - i - 1
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
