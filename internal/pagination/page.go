// Package pagination implements the page/size contract used to backfill
// channel history.
package pagination

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Page identifies the Nth most recent block of Size messages; Number starts at 1.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"size"`
}

// Normalize clamps the page into the valid range.
func (p Page) Normalize(defaultSize, maxSize int) Page {
	if defaultSize <= 0 {
		defaultSize = DefaultSize
	}
	if maxSize <= 0 {
		maxSize = MaxSize
	}
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = defaultSize
	}
	if p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func (p Page) HasMore(total int) bool {
	return total > p.Number*p.Size
}

func (p Page) Next() Page {
	return Page{Number: p.Number + 1, Size: p.Size}
}

// Reverse flips s in place; history is fetched newest-first and displayed oldest-first.
func Reverse[T any](s []T) []T {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}
