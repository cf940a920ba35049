package processor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ParsePages parses a page specification such as "3", "1,3", "5-7" or
// "1,3-5,7" into sorted, de-duplicated page numbers
func ParsePages(spec string) ([]int, error) {
	spec = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, spec)
	if spec == "" {
		return nil, fmt.Errorf("empty page specification")
	}

	var pages []int
	for _, part := range strings.Split(spec, ",") {
		if start, end, ok := strings.Cut(part, "-"); ok {
			first, err := strconv.Atoi(start)
			if err != nil {
				return nil, fmt.Errorf("invalid start page: %q", start)
			}
			last, err := strconv.Atoi(end)
			if err != nil {
				return nil, fmt.Errorf("invalid end page: %q", end)
			}
			if first > last {
				return nil, fmt.Errorf("invalid range: start > end (%d > %d)", first, last)
			}
			for i := first; i <= last; i++ {
				pages = append(pages, i)
			}
			continue
		}

		page, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid page number: %q", part)
		}
		pages = append(pages, page)
	}

	sort.Ints(pages)
	deduped := pages[:0]
	for i, page := range pages {
		if i == 0 || page != pages[i-1] {
			deduped = append(deduped, page)
		}
	}
	return deduped, nil
}

// ValidatePages checks that every page is within 1..total. A non-positive
// total only checks the lower bound.
func ValidatePages(pages []int, total int) error {
	for _, page := range pages {
		if page < 1 {
			return fmt.Errorf("page numbers must be positive, got %d", page)
		}
		if total > 0 && page > total {
			return fmt.Errorf("page %d exceeds total pages (%d)", page, total)
		}
	}
	return nil
}

// FormatPages renders pages compactly, e.g. "1,3-5"
func FormatPages(pages []int) string {
	sorted := append([]int(nil), pages...)
	sort.Ints(sorted)

	var parts []string
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] <= sorted[j]+1 {
			j++
		}
		if sorted[i] == sorted[j] {
			parts = append(parts, strconv.Itoa(sorted[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", sorted[i], sorted[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}
