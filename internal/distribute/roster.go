// Package distribute delivers round-1 and round-2 tasks to student
// endpoints in batches.
package distribute

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/samber/lo"
)

// ErrRosterHeader is returned when a roster lacks a required column.
var ErrRosterHeader = errors.New("roster is missing a required column")

// Entry is one roster row.
type Entry struct {
	Identity       string `json:"identity"`
	Endpoint       string `json:"endpoint"`
	Secret         string `json:"-"`
	GitHubUsername string `json:"github_username,omitempty"`
	GitHubRepoURL  string `json:"github_repo_url,omitempty"`
}

// identityColumns are accepted names for the identity column, in preference order.
var identityColumns = []string{"identity", "email"}

// LoadRoster reads a roster CSV file.
func LoadRoster(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	entries, err := ParseRoster(f)
	if err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	log.Printf("Loaded %d roster entries from %s", len(entries), path)
	return entries, nil
}

// ParseRoster reads roster rows from r. The header names the columns;
// identity (or email), endpoint and secret are required. Rows with an empty
// required value are skipped.
func ParseRoster(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	idCol, ok := lo.Find(identityColumns, func(c string) bool {
		_, ok := columns[c]
		return ok
	})
	if !ok {
		return nil, fmt.Errorf("%w: identity", ErrRosterHeader)
	}
	for _, required := range []string{"endpoint", "secret"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrRosterHeader, required)
		}
	}

	var entries []Entry
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, err
		}

		field := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		e := Entry{
			Identity:       field(idCol),
			Endpoint:       field("endpoint"),
			Secret:         field("secret"),
			GitHubUsername: field("github_username"),
			GitHubRepoURL:  field("github_repo_url"),
		}
		if e.Identity == "" || e.Endpoint == "" || e.Secret == "" {
			log.Printf("Skipping invalid roster row %d", line)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
