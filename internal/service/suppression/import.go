package suppression

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/delivery-engine/internal/domain"
)

// ImportUnsubscribes is the import type that appends opt-outs. Any other
// type must name a bounce kind.
const ImportUnsubscribes = "unsubscribe"

const maxImportLine = 64 * 1024

// ImportOptions describes what every line of an import becomes.
type ImportOptions struct {
	Type     string
	TenantID string
	Category domain.Category // unsubscribes only, default marketing
}

// ImportResult counts what happened to each line.
type ImportResult struct {
	Lines      int `json:"lines"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
	Hashed     int `json:"hashed"`
}

func (o ImportOptions) validate() (ImportOptions, error) {
	if o.Type == "" {
		o.Type = ImportUnsubscribes
	}
	if o.Type == ImportUnsubscribes {
		if o.Category == "" {
			o.Category = domain.CategoryMarketing
		}
		if !o.Category.Valid() {
			return o, fmt.Errorf("%w: %q", ErrInvalidCategory, o.Category)
		}
		return o, nil
	}
	switch domain.BounceKind(o.Type) {
	case domain.BounceHard, domain.BounceSoft, domain.BounceComplaint:
		return o, nil
	}
	return o, fmt.Errorf("%w: %q", ErrInvalidKind, o.Type)
}

// Import streams one address per line from r into the ledger. The first
// comma, semicolon or tab separated field is the address; blank lines,
// comments and a header row are ignored. MD5-hashed entries cannot be
// matched against plain addresses and are counted but skipped. An address
// repeated within the same import is appended once.
//
// A storage error stops the import; the result covers the lines already
// appended.
func (s *Service) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxImportLine)
	for scanner.Scan() {
		res.Lines++
		if res.Lines%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		field := firstField(scanner.Text())
		switch {
		case field == "" || strings.HasPrefix(field, "#"):
			continue
		case res.Lines == 1 && isHeader(field):
			continue
		case isMD5(field):
			res.Hashed++
			continue
		case !domain.ValidAddress(field):
			res.Invalid++
			continue
		}

		addr := domain.NormalizeAddress(field)
		if _, dup := seen[addr]; dup {
			res.Duplicates++
			continue
		}
		seen[addr] = struct{}{}

		if opts.Type == ImportUnsubscribes {
			err = s.recorder.RecordUnsubscribe(ctx, s.repo, addr, opts.TenantID, opts.Category, domain.SourceImport)
		} else {
			err = s.recorder.RecordBounce(ctx, s.repo, addr, domain.BounceKind(opts.Type), opts.TenantID, "")
		}
		if err != nil {
			return res, fmt.Errorf("import line %d: %w", res.Lines, err)
		}
		res.Imported++
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read import: %w", err)
	}
	return res, nil
}

func firstField(line string) string {
	if i := strings.IndexAny(line, ",;\t"); i >= 0 {
		line = line[:i]
	}
	return strings.Trim(strings.TrimSpace(line), `"`)
}

func isHeader(field string) bool {
	switch strings.ToLower(field) {
	case "email", "address", "email_address", "recipient":
		return true
	}
	return false
}

func isMD5(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
