package recognizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/scanforge/serialscan/internal/utils"
)

// serialAlphabet is the restricted recognition alphabet: Apple-style
// serials only contain digits and uppercase letters.
const serialAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Charset maps CTC class indices to characters. Index 0 is the blank.
type Charset struct {
	chars []rune // chars[i] is the character for class index i+1
	index map[rune]int
}

// DefaultSerialCharset returns the built-in 36-character serial charset.
func DefaultSerialCharset() *Charset {
	cs, _ := newCharset([]rune(serialAlphabet))
	return cs
}

// LoadCharset reads a dictionary file with one character per line,
// NFC-normalizes each entry and keeps only characters in the restricted
// serial alphabet. Order in the file defines class indices.
func LoadCharset(path string) (*Charset, error) {
	f, err := os.Open(path) //nolint:gosec // G304: dictionary path comes from config
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	var chars []rune
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := norm.NFC.String(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		r := []rune(line)[0]
		if strings.ContainsRune(serialAlphabet, r) {
			chars = append(chars, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return newCharset(chars)
}

func newCharset(chars []rune) (*Charset, error) {
	if len(chars) == 0 {
		return nil, fmt.Errorf("empty charset")
	}
	index := make(map[rune]int, len(chars))
	for i, r := range chars {
		if _, dup := index[r]; dup {
			return nil, fmt.Errorf("duplicate charset entry: %q", r)
		}
		index[r] = i + 1 // class 0 is the CTC blank
	}
	return &Charset{chars: chars, index: index}, nil
}

// Size returns the number of characters (excluding the blank).
func (c *Charset) Size() int { return len(c.chars) }

// BlankIndex returns the CTC blank class index.
func (c *Charset) BlankIndex() int { return 0 }

// Char returns the character for a class index, or false for the blank or
// out-of-range indices.
func (c *Charset) Char(classIdx int) (rune, bool) {
	if classIdx <= 0 || classIdx > len(c.chars) {
		return 0, false
	}
	return c.chars[classIdx-1], true
}

// Contains reports whether r is in the charset.
func (c *Charset) Contains(r rune) bool {
	_, ok := c.index[r]
	return ok
}

// Render converts a decoded sequence into text plus approximate glyph
// boxes. Each collapsed character occupies the pixel column band of its
// emitting timestep: box width = inputWidth/TotalT scaled back to the
// original crop via scaleX, full crop height.
func (c *Charset) Render(d *Decoded, scaleX, cropHeight float64, inputWidth int) (string, []utils.Box, []float64) {
	if d == nil || d.TotalT <= 0 {
		return "", nil, nil
	}
	stepW := float64(inputWidth) / float64(d.TotalT)

	var sb strings.Builder
	boxes := make([]utils.Box, 0, len(d.Indices))
	confs := make([]float64, 0, len(d.Indices))
	for i, idx := range d.Indices {
		r, ok := c.Char(idx)
		if !ok {
			continue
		}
		sb.WriteRune(r)
		t := d.Timesteps[i]
		x0 := float64(t) * stepW * scaleX
		x1 := (float64(t) + 1) * stepW * scaleX
		boxes = append(boxes, utils.NewBox(x0, 0, x1, cropHeight))
		confs = append(confs, d.Probs[i])
	}
	return sb.String(), boxes, confs
}
