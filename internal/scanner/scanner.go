// Package scanner infers the (prefix, digits, extension) naming
// pattern of an input CT slice sequence from a directory listing, per
// spec.md §4.3.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jikhanjung/ctpyramid/internal/errs"
	"github.com/jikhanjung/ctpyramid/internal/imgcodec"
	"github.com/jikhanjung/ctpyramid/internal/pathguard"
)

// Pattern is the immutable record describing an input slice sequence.
// Filenames are reconstructable as Prefix + zero-padded(n, Digits) +
// "." + Extension for each n in [SeqBegin, SeqEnd].
type Pattern struct {
	Prefix    string
	Extension string
	Digits    int
	SeqBegin  int
	SeqEnd    int
	Width     int
	Height    int
}

// FilenameFor reconstructs the filename for sequence number n.
func (p *Pattern) FilenameFor(n int) string {
	return fmt.Sprintf("%s%0*d.%s", p.Prefix, p.Digits, n, p.Extension)
}

// Count is the dense logical count of the sequence: missing
// intermediate numbers are still counted, since the pattern records a
// dense logical range and missing files are reported at read time.
func (p *Pattern) Count() int { return p.SeqEnd - p.SeqBegin + 1 }

var nameRe = regexp.MustCompile(`^(.*?)(\d+)\.([A-Za-z0-9]+)$`)

type candidate struct {
	name      string
	prefix    string
	extension string // lower-cased
	number    int
	numText   string
}

// Scan lists dir through guard, infers the dominant (prefix,
// extension) pattern among its slice-shaped filenames, and returns the
// resulting Pattern.
func Scan(dir string, guard *pathguard.Guard) (*Pattern, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindDirectoryNotFound, "scanning "+dir, err)
		}
		return nil, errs.Wrap(errs.KindDirectoryNotReadable, "scanning "+dir, err)
	}

	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if guard != nil {
			if _, err := guard.Validate(dir + string(os.PathSeparator) + name); err != nil {
				continue
			}
		}
		m := nameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		ext := strings.ToLower(m[3])
		if !imgcodec.SupportedExtensions[ext] {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{name: name, prefix: m[1], extension: ext, number: n, numText: m[2]})
	}

	if len(candidates) == 0 {
		return nil, errs.New(errs.KindNoImagesFound, "no filenames in "+dir+" matched the slice naming pattern")
	}

	prefix, ok := pickMostCommon(candidates, func(c candidate) string { return c.prefix })
	if !ok {
		return nil, errs.New(errs.KindInvalidImageFormat, "no supported extension survived prefix selection")
	}
	ext, ok := pickMostCommonExtension(candidates)
	if !ok {
		return nil, errs.New(errs.KindInvalidImageFormat, "no supported extension found in "+dir)
	}

	var filtered []candidate
	for _, c := range candidates {
		if c.prefix == prefix && c.extension == ext {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return nil, errs.New(errs.KindNoImagesFound, "no filenames matched the chosen prefix/extension pair")
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].number < filtered[j].number })

	digits := len(filtered[0].numText)
	seqBegin := filtered[0].number
	seqEnd := filtered[len(filtered)-1].number

	firstPath := dir + string(os.PathSeparator) + filtered[0].name
	if guard != nil {
		validated, err := guard.Validate(firstPath)
		if err == nil {
			firstPath = validated
		}
	}
	width, height, err := imgcodec.Dimensions(firstPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.KindNoImagesFound, "first slice missing", err)
		}
		return nil, errs.Wrap(errs.KindCorruptedImage, "reading dimensions of first slice", err)
	}

	return &Pattern{
		Prefix:    prefix,
		Extension: ext,
		Digits:    digits,
		SeqBegin:  seqBegin,
		SeqEnd:    seqEnd,
		Width:     width,
		Height:    height,
	}, nil
}

// pickMostCommon picks the key with the greatest count, breaking ties
// lexicographically smallest, per spec.md §4.3 step 3.
func pickMostCommon(cs []candidate, key func(candidate) string) (string, bool) {
	counts := map[string]int{}
	for _, c := range cs {
		counts[key(c)]++
	}
	return pickBest(counts)
}

// pickMostCommonExtension is pickMostCommon restricted to the
// supported extension set (already guaranteed by construction here,
// but kept distinct to mirror spec.md's two separate selection steps).
func pickMostCommonExtension(cs []candidate) (string, bool) {
	counts := map[string]int{}
	for _, c := range cs {
		if imgcodec.SupportedExtensions[c.extension] {
			counts[c.extension]++
		}
	}
	return pickBest(counts)
}

func pickBest(counts map[string]int) (string, bool) {
	var best string
	bestCount := -1
	for k, n := range counts {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best, bestCount >= 0
}
