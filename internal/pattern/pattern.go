package pattern

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimestampDivisor converts source timestamps (tenths of a second) to seconds.
const TimestampDivisor = 10

// Frame is one timestamped row of raw actuator values.
type Frame struct {
	Timestamp float64   `json:"timestamp"`
	Values    []float64 `json:"values"`
}

// Pattern is a keyframe sequence sorted ascending by timestamp.
//
// Length is the timestamp of the last frame. A Pattern is never modified
// after Parse returns; playback shares it by pointer.
type Pattern struct {
	Length float64 `json:"length"`
	Frames []Frame `json:"frames"`
}

// Parse reads pattern text.
//
// Rows with fewer than two cells are skipped. A timestamp that is not a
// non-negative number, or a value that is not a number, fails the whole
// parse with a *MalformedPatternError naming the row and column. Input
// with no usable rows is rejected the same way.
func Parse(text string) (*Pattern, error) {
	return ParseReader(strings.NewReader(text))
}

// ParseReader is Parse over an io.Reader.
func ParseReader(r io.Reader) (*Pattern, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comment = '#'

	var frames []Frame
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &MalformedPatternError{Row: pe.Line, Column: pe.Column, Reason: pe.Err.Error()}
			}
			return nil, fmt.Errorf("reading pattern: %w", err)
		}

		cells := trimCells(record)
		if len(cells) < 2 {
			continue
		}
		row, _ := cr.FieldPos(0)

		frame, err := parseRow(row, cells)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	if len(frames) == 0 {
		return nil, &MalformedPatternError{Reason: "no usable frames"}
	}

	slices.SortStableFunc(frames, func(a, b Frame) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})

	return &Pattern{
		Length: frames[len(frames)-1].Timestamp,
		Frames: frames,
	}, nil
}

// LoadFile parses the pattern stored at path.
func LoadFile(path string) (*Pattern, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config or a directory listing
	if err != nil {
		return nil, fmt.Errorf("opening pattern file: %w", err)
	}
	defer f.Close()

	p, err := ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p, nil
}

// trimCells trims every cell and drops trailing empty cells, so "0,10,"
// counts as two columns.
func trimCells(record []string) []string {
	cells := make([]string, len(record))
	for i, c := range record {
		cells[i] = strings.TrimSpace(c)
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

func parseRow(row int, cells []string) (Frame, error) {
	ts, err := parseNumber(cells[0])
	if err != nil {
		return Frame{}, &MalformedPatternError{Row: row, Column: 1, Value: cells[0], Reason: "timestamp is not a number"}
	}
	if ts < 0 {
		return Frame{}, &MalformedPatternError{Row: row, Column: 1, Value: cells[0], Reason: "timestamp is negative"}
	}

	values := make([]float64, 0, len(cells)-1)
	for i, cell := range cells[1:] {
		v, err := parseNumber(cell)
		if err != nil {
			return Frame{}, &MalformedPatternError{Row: row, Column: i + 2, Value: cell, Reason: "value is not a number"}
		}
		values = append(values, v)
	}

	return Frame{Timestamp: ts / TimestampDivisor, Values: values}, nil
}

// parseNumber accepts finite decimal numbers only.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

// SearchFirst returns the leftmost index in [0, n) for which pred is true.
// pred must be monotone: false for a prefix, then true for the rest.
// The second result is false when pred is true for no index.
func SearchFirst(n int, pred func(int) bool) (int, bool) {
	i := sort.Search(n, pred)
	return i, i < n
}

// FrameAt returns the index of the first frame whose timestamp is strictly
// greater than t. It reports false when every frame is at or before t.
func (p *Pattern) FrameAt(t float64) (int, bool) {
	return SearchFirst(len(p.Frames), func(i int) bool {
		return p.Frames[i].Timestamp > t
	})
}

// ValuesAt returns the raw values in effect at time t.
//
// Before the first frame there is nothing in effect and ok is false. Past
// the last frame the last frame's values are held.
func (p *Pattern) ValuesAt(t float64) (values []float64, ok bool) {
	idx, found := p.FrameAt(t)
	if !found {
		return p.Frames[len(p.Frames)-1].Values, true
	}
	if idx == 0 {
		return nil, false
	}
	return p.Frames[idx-1].Values, true
}

// Duration returns Length as a time.Duration.
func (p *Pattern) Duration() time.Duration {
	return time.Duration(p.Length * float64(time.Second))
}
