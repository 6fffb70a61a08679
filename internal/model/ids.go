package model

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// ShoeID derives a release identifier from its display name and its
// position in the scrape batch. The ordinal keeps same-named releases apart,
// which also means the ID is only stable within one batch.
func ShoeID(name string, ordinal int) string {
	base := nonAlnum.ReplaceAllString(strings.ToLower(name), "-")
	base = strings.Trim(base, "-")
	return fmt.Sprintf("%s-%d", base, ordinal)
}

// Summaries turns a raw listing into summaries with batch-scoped IDs.
func Summaries(raw []RawItem, batchID string) []ReleaseSummary {
	out := make([]ReleaseSummary, 0, len(raw))
	for i, r := range raw {
		out = append(out, ReleaseSummary{
			ID:         ShoeID(r.Name, i),
			Name:       r.Name,
			Price:      r.Price,
			ImageURL:   r.ImageURL,
			ProductURL: r.ProductURL,
			Status:     r.Status,
			BatchID:    batchID,
			Ordinal:    i,
		})
	}
	return out
}

var trailingDigits = regexp.MustCompile(`(\d+)\D*$`)

// imageIndex returns the last number in the final path segment of u.
func imageIndex(u string) (int, bool) {
	p := u
	if parsed, err := url.Parse(u); err == nil {
		p = parsed.Path
	}
	m := trailingDigits.FindStringSubmatch(path.Base(p))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// OrderImageURLs drops empty and duplicate URLs, then orders URLs carrying a
// numeric index by that index. URLs without one keep their relative order
// after the indexed ones.
func OrderImageURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ii, iok := imageIndex(out[i])
		ji, jok := imageIndex(out[j])
		switch {
		case iok && jok:
			return ii < ji
		case iok:
			return true
		default:
			return false
		}
	})
	return out
}
