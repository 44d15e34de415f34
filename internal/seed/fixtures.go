package seed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

var (
	products = []string{"Product A", "Product B", "Product C", "Product D"}
	regions  = []string{"North", "South", "East", "West"}
)

// Fixtures produces synthetic data for one seed. Each method starts from a
// fresh generator, so output depends only on the seed and arguments, never
// on call order.
type Fixtures struct {
	seed        string
	generatedAt time.Time
}

// New returns fixtures for seed. generatedAt is embedded in documents and
// rate tables; pass the start of the seed's bucket to keep them reproducible.
func New(seed string, generatedAt time.Time) *Fixtures {
	return &Fixtures{seed: seed, generatedAt: generatedAt.UTC()}
}

// Seed returns the seed the fixtures were built from.
func (f *Fixtures) Seed() string { return f.seed }

// String returns n random lowercase alphanumeric characters.
func (f *Fixtures) String(n int) string {
	rng := NewRand(f.seed)
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphanumeric[rng.Intn(len(alphanumeric))])
	}
	return b.String()
}

// Number returns an integer in [1000, 99999].
func (f *Fixtures) Number() int {
	return f.IntRange(1000, 99999)
}

// IntRange returns an integer in [lo, hi].
func (f *Fixtures) IntRange(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + NewRand(f.seed).Intn(hi-lo+1)
}

// Row is one line of the sales table.
type Row struct {
	Product string `json:"product"`
	Sales   int    `json:"sales"`
	Region  string `json:"region"`
}

// Table is synthetic sales data. Total always equals the sum of Rows[i].Sales.
type Table struct {
	CSV   string `json:"csv"`
	Rows  []Row  `json:"rows"`
	Total int    `json:"total"`
}

// Tabular returns 2-4 product rows with sales in [100, 1000].
func (f *Fixtures) Tabular() Table {
	rng := NewRand(f.seed)

	names := append([]string(nil), products...)
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	count := 2 + rng.Intn(3)

	var (
		t   Table
		csv strings.Builder
	)
	csv.WriteString("Product,Sales,Region\n")
	for _, name := range names[:count] {
		row := Row{
			Product: name,
			Sales:   100 + rng.Intn(901),
			Region:  regions[rng.Intn(len(regions))],
		}
		fmt.Fprintf(&csv, "%s,%d,%s\n", row.Product, row.Sales, row.Region)
		t.Rows = append(t.Rows, row)
		t.Total += row.Sales
	}
	t.CSV = csv.String()
	return t
}

// Document returns a markdown file embedding the seed and generation time.
func (f *Fixtures) Document() string {
	return fmt.Sprintf(`# Sample Markdown Content

This is a sample markdown file generated for task %s.

## Features

- Random seed: %s
- Generated at: %s
- Contains various markdown elements

### Code Example

`+"```python"+`
def hello_world():
    print("Hello, World!")
    return "success"
`+"```"+`

### Lists

1. Item one
2. Item two
3. Item three

- Bullet item A
- Bullet item B
- Bullet item C

> This is a blockquote with some **bold** and *italic* text.

| Column 1 | Column 2 | Column 3 |
|----------|----------|----------|
| Data 1   | Data 2   | Data 3   |
| Data 4   | Data 5   | Data 6   |
`, Short(f.seed), f.seed, f.generatedAt.Format(time.RFC3339))
}

// RateTable is a fixed currency lookup table tagged with its seed.
type RateTable struct {
	Currencies map[string]float64 `json:"currencies"`
	Metadata   struct {
		Seed        string `json:"seed"`
		GeneratedAt string `json:"generated_at"`
	} `json:"metadata"`
}

// Rates returns the currency table for this seed.
func (f *Fixtures) Rates() RateTable {
	var r RateTable
	r.Currencies = map[string]float64{
		"USD": 1.0,
		"EUR": 0.85,
		"GBP": 0.73,
		"JPY": 110.0,
		"CAD": 1.25,
	}
	r.Metadata.Seed = f.seed
	r.Metadata.GeneratedAt = f.generatedAt.Format(time.RFC3339)
	return r
}

// RatesJSON returns the encoded rate table. Map keys are sorted by
// encoding/json, so the bytes are stable.
func (f *Fixtures) RatesJSON() ([]byte, error) {
	return json.Marshal(f.Rates())
}
