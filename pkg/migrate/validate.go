package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	annotationBegin = "-- +goose StatementBegin"
	annotationEnd   = "-- +goose StatementEnd"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every .sql file in dir: the YYYYMMDDHHMMSS_name.sql
// naming, unique versions, an Up section before a Down section, and
// balanced StatementBegin/StatementEnd blocks. All problems are reported.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	versions := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := versions[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
		}
		versions[m[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		if err := checkAnnotations(body); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("migration %q: %w", name, err))
		}
	}
	return errs
}

func checkAnnotations(body []byte) error {
	upLine, downLine, openBlock := 0, 0, 0

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for n := 1; scanner.Scan(); n++ {
		switch strings.TrimSpace(scanner.Text()) {
		case annotationUp:
			if upLine == 0 {
				upLine = n
			}
		case annotationDown:
			if downLine == 0 {
				downLine = n
			}
		case annotationBegin:
			if openBlock != 0 {
				return fmt.Errorf("line %d: StatementBegin inside block opened at line %d", n, openBlock)
			}
			openBlock = n
		case annotationEnd:
			if openBlock == 0 {
				return fmt.Errorf("line %d: StatementEnd without StatementBegin", n)
			}
			openBlock = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	switch {
	case upLine == 0:
		return fmt.Errorf("missing %q", annotationUp)
	case downLine == 0:
		return fmt.Errorf("missing %q", annotationDown)
	case downLine < upLine:
		return fmt.Errorf("%q must precede %q", annotationUp, annotationDown)
	case openBlock != 0:
		return fmt.Errorf("StatementBegin at line %d is never closed", openBlock)
	}
	return nil
}
