package directory

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Record is one entry of an LDIF file.
type Record struct {
	DN         string
	Attributes map[string][]string
}

func (r *Record) add(name, value string) {
	if r.Attributes == nil {
		r.Attributes = map[string][]string{}
	}
	r.Attributes[name] = append(r.Attributes[name], value)
}

// ParseLDIF reads add records from LDIF content. Only "changetype: add"
// change records are accepted.
func ParseLDIF(r io.Reader) ([]Record, error) {
	var (
		records []Record
		current *Record
		lines   []string
		starts  []int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	// Unfold continuation lines first; a line starting with a single space
	// continues the previous one. starts keeps the physical line number
	// each logical line begins on.
	physical := 0
	for scanner.Scan() {
		physical++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, " ") && len(lines) > 0 && lines[len(lines)-1] != "" {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
		starts = append(starts, physical)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading LDIF: %w", err)
	}

	flush := func() {
		if current != nil {
			records = append(records, *current)
			current = nil
		}
	}

	for i, line := range lines {
		lineNo := starts[i]
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		name, value, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("LDIF line %d: %w", lineNo, err)
		}

		switch {
		case strings.EqualFold(name, "version") && current == nil:
			continue
		case strings.EqualFold(name, "dn"):
			flush()
			current = &Record{DN: value}
		case current == nil:
			return nil, fmt.Errorf("LDIF line %d: attribute %q before dn", lineNo, name)
		case strings.EqualFold(name, "changetype"):
			if !strings.EqualFold(value, "add") {
				return nil, fmt.Errorf("LDIF line %d: unsupported changetype %q", lineNo, value)
			}
		default:
			current.add(name, value)
		}
	}
	flush()
	return records, nil
}

func parseLine(line string) (string, string, error) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", fmt.Errorf("missing attribute separator in %q", line)
	}
	name := line[:idx]
	rest := line[idx+1:]

	if strings.HasPrefix(rest, ":") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest[1:]))
		if err != nil {
			return "", "", fmt.Errorf("invalid base64 value for %s: %w", name, err)
		}
		return name, string(decoded), nil
	}
	if strings.HasPrefix(rest, "<") {
		return "", "", fmt.Errorf("URL values are not supported (%s)", name)
	}
	return name, strings.TrimSpace(rest), nil
}
