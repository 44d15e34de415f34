package seed

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestGenerateSeed_Deterministic(t *testing.T) {
	a := GenerateSeed("alice@example.com", "2024-01-15-09")
	b := GenerateSeed("alice@example.com", "2024-01-15-09")
	if a != b {
		t.Fatalf("Expected identical seeds, got %s and %s", a, b)
	}
	if len(a) != Length {
		t.Errorf("Expected seed length %d, got %d", Length, len(a))
	}
	for _, c := range a {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("Seed %q is not lowercase hex", a)
		}
	}
}

func TestGenerateSeed_BucketChanges(t *testing.T) {
	a := GenerateSeed("alice@example.com", "2024-01-15-09")
	b := GenerateSeed("alice@example.com", "2024-01-15-10")
	if a == b {
		t.Errorf("Expected different seeds across buckets, both were %s", a)
	}
	c := GenerateSeed("bob@example.com", "2024-01-15-09")
	if a == c {
		t.Errorf("Expected different seeds across identities, both were %s", a)
	}
}

func TestBucket(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 1, 15, 11, 59, 59, 0, loc)
	if got := Bucket(ts); got != "2024-01-15-09" {
		t.Errorf("Expected bucket 2024-01-15-09, got %s", got)
	}

	start, err := BucketStart("2024-01-15-09")
	if err != nil {
		t.Fatalf("BucketStart failed: %v", err)
	}
	if !start.Equal(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected bucket start %v", start)
	}
}

func TestTabular_TotalMatchesRows(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		s := GenerateSeed("student"+strconv.Itoa(i)+"@example.com", "2024-01-15-09")
		table := New(s, now).Tabular()

		if len(table.Rows) < 2 || len(table.Rows) > 4 {
			t.Fatalf("seed %s: expected 2-4 rows, got %d", s, len(table.Rows))
		}

		// Re-derive the total from the CSV itself, the way a student would.
		lines := strings.Split(strings.TrimSpace(table.CSV), "\n")
		if lines[0] != "Product,Sales,Region" {
			t.Fatalf("seed %s: unexpected header %q", s, lines[0])
		}
		sum := 0
		for _, line := range lines[1:] {
			fields := strings.Split(line, ",")
			if len(fields) != 3 {
				t.Fatalf("seed %s: malformed line %q", s, line)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				t.Fatalf("seed %s: bad sales value %q", s, fields[1])
			}
			if n < 100 || n > 1000 {
				t.Errorf("seed %s: sales %d out of range", s, n)
			}
			sum += n
		}
		if sum != table.Total {
			t.Errorf("seed %s: declared total %d, csv sums to %d", s, table.Total, sum)
		}
	}
}

func TestFixtures_Deterministic(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	a := New("0123456789abcdef", now)
	b := New("0123456789abcdef", now)

	if a.String(12) != b.String(12) {
		t.Error("String output differs for the same seed")
	}
	if a.Number() != b.Number() {
		t.Error("Number output differs for the same seed")
	}
	if a.Tabular().CSV != b.Tabular().CSV {
		t.Error("Tabular output differs for the same seed")
	}
	if a.Document() != b.Document() {
		t.Error("Document output differs for the same seed")
	}

	// Call order must not matter.
	_ = a.Tabular()
	if a.String(12) != b.String(12) {
		t.Error("String output depends on previous calls")
	}
}

func TestFixtures_Ranges(t *testing.T) {
	f := New("fedcba9876543210", time.Now())
	if s := f.String(20); len(s) != 20 {
		t.Errorf("Expected 20 chars, got %d", len(s))
	}
	if n := f.Number(); n < 1000 || n > 99999 {
		t.Errorf("Number %d out of range", n)
	}
	if n := f.IntRange(5, 5); n != 5 {
		t.Errorf("Expected degenerate range to return 5, got %d", n)
	}
}

func TestDocumentAndRates_EmbedSeed(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	f := New("0123456789abcdef", now)

	doc := f.Document()
	if !strings.HasPrefix(doc, "# Sample Markdown Content") {
		t.Error("Document should start with an H1")
	}
	if !strings.Contains(doc, "task 01234567") || !strings.Contains(doc, "0123456789abcdef") {
		t.Error("Document should embed the seed")
	}
	if !strings.Contains(doc, "2024-01-15T09:00:00Z") {
		t.Error("Document should embed the generation time")
	}

	data, err := f.RatesJSON()
	if err != nil {
		t.Fatalf("RatesJSON failed: %v", err)
	}
	var decoded RateTable
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode rates: %v", err)
	}
	if decoded.Metadata.Seed != "0123456789abcdef" {
		t.Errorf("Expected seed tag, got %q", decoded.Metadata.Seed)
	}
	if decoded.Currencies["EUR"] != 0.85 {
		t.Errorf("Expected EUR 0.85, got %v", decoded.Currencies["EUR"])
	}
}
