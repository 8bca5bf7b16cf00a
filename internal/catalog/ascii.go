package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"shiftstore/internal/shiftstore"
)

// DefaultColumns is the parameter order requested from SExtractor. Headerless
// catalogs are read with this layout.
var DefaultColumns = []string{
	"NUMBER", "X_IMAGE", "Y_IMAGE", "MAG_BEST", "FLAGS",
	"CLASS_STAR", "FWHM_IMAGE", "A_IMAGE", "B_IMAGE", "EXT_NUMBER",
}

// ReadASCII parses an SExtractor ASCII or ASCII_HEAD catalog. Header lines of
// the form "#   2 X_IMAGE  Object position along x" name the columns.
func ReadASCII(r io.Reader) ([]shiftstore.Source, error) {
	columns := map[string]int{}
	var sources []shiftstore.Source

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			fields := strings.Fields(strings.TrimPrefix(text, "#"))
			if len(fields) >= 2 {
				if idx, err := strconv.Atoi(fields[0]); err == nil && idx > 0 {
					columns[fields[1]] = idx - 1
				}
			}
			continue
		}
		if len(columns) == 0 {
			for i, name := range DefaultColumns {
				columns[name] = i
			}
		}
		s, err := parseRow(strings.Fields(text), columns)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sources = append(sources, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return sources, nil
}

func parseRow(fields []string, columns map[string]int) (shiftstore.Source, error) {
	var s shiftstore.Source
	num := func(name string, required bool) (float64, error) {
		idx, ok := columns[name]
		if !ok {
			if required {
				return 0, fmt.Errorf("missing column %s", name)
			}
			return 0, nil
		}
		if idx >= len(fields) {
			return 0, fmt.Errorf("column %s: row has %d fields", name, len(fields))
		}
		v, err := strconv.ParseFloat(fields[idx], 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		return v, nil
	}

	id, err := num("NUMBER", true)
	if err != nil {
		return s, err
	}
	s.ID = int(id)
	if s.X, err = num("X_IMAGE", true); err != nil {
		return s, err
	}
	if s.Y, err = num("Y_IMAGE", true); err != nil {
		return s, err
	}
	if s.Mag, err = num("MAG_BEST", true); err != nil {
		return s, err
	}
	if s.FWHM, err = num("FWHM_IMAGE", false); err != nil {
		return s, err
	}
	flags, err := num("FLAGS", false)
	if err != nil {
		return s, err
	}
	s.Flags = int(flags)
	if s.ClassStar, err = num("CLASS_STAR", false); err != nil {
		return s, err
	}
	if s.A, err = num("A_IMAGE", false); err != nil {
		return s, err
	}
	if s.B, err = num("B_IMAGE", false); err != nil {
		return s, err
	}
	ext, err := num("EXT_NUMBER", false)
	if err != nil {
		return s, err
	}
	s.Ext = int(ext)
	return s, nil
}
