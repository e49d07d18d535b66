package openstack

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

// Output formats understood by the parsers.
const (
	FormatShell = "shell"
	FormatCSV   = "csv"
	FormatValue = "value"
)

// Output is the captured output of a successful client call.
type Output struct {
	Format string
	Stdout string
	Stderr string
}

// Shell parses stdout as shell format.
func (o *Output) Shell() (map[string]string, error) {
	fields, err := ParseShell(o.Stdout)
	if err != nil {
		return nil, unparseable(o, err)
	}
	return fields, nil
}

// Rows parses stdout as quoted CSV.
func (o *Output) Rows() ([]map[string]string, error) {
	rows, err := ParseCSV(o.Stdout)
	if err != nil {
		return nil, unparseable(o, err)
	}
	return rows, nil
}

// Values returns the non-empty lines of stdout.
func (o *Output) Values() []string {
	return ParseValue(o.Stdout)
}

func unparseable(o *Output, err error) error {
	return engine.NewExecutionError(fmt.Sprintf("unparseable %s output", o.Format), err).
		WithCode(engine.ErrCodeUnparseableOutput).
		WithDetail("stdout", o.Stdout)
}

// ParseShell parses a sequence of key="value" lines. Values may contain
// escaped quotes and backslashes and may span several lines.
func ParseShell(text string) (map[string]string, error) {
	fields := make(map[string]string)
	s := text
	line := 1

	for len(s) > 0 {
		// skip blank lines
		if s[0] == '\n' || s[0] == '\r' || s[0] == ' ' || s[0] == '\t' {
			if s[0] == '\n' {
				line++
			}
			s = s[1:]
			continue
		}

		eq := strings.IndexByte(s, '=')
		nl := strings.IndexByte(s, '\n')
		if eq <= 0 || (nl >= 0 && nl < eq) {
			return nil, fmt.Errorf("line %d: expected key=\"value\"", line)
		}
		key := normalizeKey(s[:eq])
		s = s[eq+1:]
		if len(s) == 0 || s[0] != '"' {
			return nil, fmt.Errorf("line %d: value of %q is not quoted", line, key)
		}
		s = s[1:]

		var value strings.Builder
		closed := false
		for i := 0; i < len(s); i++ {
			c := s[i]
			switch {
			case c == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\'):
				value.WriteByte(s[i+1])
				i++
			case c == '"':
				s = s[i+1:]
				closed = true
			default:
				if c == '\n' {
					line++
				}
				value.WriteByte(c)
			}
			if closed {
				break
			}
		}
		if !closed {
			return nil, fmt.Errorf("line %d: unterminated value for %q", line, key)
		}

		// the rest of the line must be empty
		rest := s
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			rest = s[:i]
			s = s[i:]
		} else {
			s = ""
		}
		if strings.TrimSpace(rest) != "" {
			return nil, fmt.Errorf("line %d: trailing text after value of %q", line, key)
		}

		fields[key] = value.String()
	}

	return fields, nil
}

// ParseCSV parses a quoted CSV table with a header row. Header names are
// normalized to snake_case, so "Domain ID" becomes "domain_id".
func ParseCSV(text string) ([]map[string]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	r := csv.NewReader(strings.NewReader(text))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = normalizeKey(header[i])
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			row[name] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseValue returns the non-empty lines of value-format output.
func ParseValue(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	for _, r := range key {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ParseBool reads the boolean spellings used by the client.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
