package sorting

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the candidate set as the allocator sees it: every (id, key)
// pair, in id order. Adding or removing a card, or a card changing bucket, changes
// the fingerprint; input order does not.
func Fingerprint(items []Item) string {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b Item) int {
		return cmp.Compare(a.ID, b.ID)
	})

	d := xxhash.New()
	buf := make([]byte, 0, 64)
	for _, it := range sorted {
		buf = buf[:0]
		buf = strconv.AppendUint(buf, uint64(it.ID), 10)
		buf = append(buf, ':')
		if it.Key.Unknown {
			buf = append(buf, '?')
		} else {
			buf = strconv.AppendInt(buf, int64(it.Key.Rank), 10)
			buf = append(buf, ':')
			buf = append(buf, it.Key.Label...)
		}
		buf = append(buf, '\n')
		_, _ = d.Write(buf)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
