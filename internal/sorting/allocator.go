package sorting

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
)

// Item is one card handed to the allocator
type Item struct {
	ID  uint
	Key SortKey
}

// Allocation is the id -> bin mapping for one run. Bins is always BinCount long;
// a bin with no cards is logically empty for this run.
type Allocation struct {
	BinCount    int
	Bins        [][]uint    // card ids per bin, in key order then id order
	BinKeys     [][]SortKey // distinct keys per bin, ascending
	Assignments map[uint]int
	Unknown     []uint // ids whose key could not be resolved, ascending
	Split       bool   // true when at least one key group spans several bins
}

// MaxPopulation returns the size of the fullest bin
func (a *Allocation) MaxPopulation() int {
	m := 0
	for _, b := range a.Bins {
		m = max(m, len(b))
	}
	return m
}

// EmptyBins returns the indexes of bins that received no cards
func (a *Allocation) EmptyBins() []int {
	var empty []int
	for i, b := range a.Bins {
		if len(b) == 0 {
			empty = append(empty, i)
		}
	}
	return empty
}

type keyGroup struct {
	key SortKey
	ids []uint
}

// unit is a contiguous run of one key group that is never split further
type unit struct {
	group int
	ids   []uint
}

// Allocate partitions items into binCount ordered bins.
//
// Keys are grouped and ordered by SortKey.Compare; cards inside a group are ordered
// by id so the result depends only on the (id, key) set, never on input order.
// When there are no more groups than bins each group gets its own bin and the
// remaining bins stay empty. Otherwise adjacent groups are merged into contiguous
// bins minimizing the fullest bin; a group larger than ceil(N/binCount) is split into
// contiguous bins only when that strictly lowers the fullest bin.
func Allocate(items []Item, binCount int) (*Allocation, error) {
	if err := ValidateBinCount(binCount); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyInput
	}

	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b Item) int {
		if c := a.Key.Compare(b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	alloc := &Allocation{
		BinCount:    binCount,
		Bins:        make([][]uint, binCount),
		BinKeys:     make([][]SortKey, binCount),
		Assignments: make(map[uint]int, len(items)),
	}

	seen := make(map[uint]struct{}, len(sorted))
	var groups []keyGroup
	total := 0
	for _, it := range sorted {
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%w: card %d listed twice", ErrInvalidConfiguration, it.ID)
		}
		seen[it.ID] = struct{}{}

		if it.Key.Unknown {
			alloc.Unknown = append(alloc.Unknown, it.ID)
			continue
		}
		if n := len(groups); n == 0 || groups[n-1].key.Compare(it.Key) != 0 {
			groups = append(groups, keyGroup{key: it.Key})
		}
		groups[len(groups)-1].ids = append(groups[len(groups)-1].ids, it.ID)
		total++
	}
	slices.Sort(alloc.Unknown)

	if len(groups) <= binCount {
		for i, g := range groups {
			alloc.place(i, g.key, g.ids)
		}
		return alloc, nil
	}

	whole := make([]unit, len(groups))
	for i, g := range groups {
		whole[i] = unit{group: i, ids: g.ids}
	}
	units := whole
	cuts, load := pack(unitSizes(whole), binCount)

	fair := (total + binCount - 1) / binCount
	if split, ok := splitOversized(groups, fair); ok {
		splitCuts, splitLoad := pack(unitSizes(split), binCount)
		if splitLoad < load {
			units, cuts = split, splitCuts
			alloc.Split = true
		}
	}

	for bin := 0; bin < binCount; bin++ {
		for _, u := range units[cuts[bin]:cuts[bin+1]] {
			alloc.place(bin, groups[u.group].key, u.ids)
		}
	}
	return alloc, nil
}

func (a *Allocation) place(bin int, key SortKey, ids []uint) {
	a.Bins[bin] = append(a.Bins[bin], ids...)
	if keys := a.BinKeys[bin]; len(keys) == 0 || keys[len(keys)-1].Compare(key) != 0 {
		a.BinKeys[bin] = append(a.BinKeys[bin], key)
	}
	for _, id := range ids {
		a.Assignments[id] = bin
	}
}

func unitSizes(units []unit) []int {
	sizes := make([]int, len(units))
	for i, u := range units {
		sizes[i] = len(u.ids)
	}
	return sizes
}

// splitOversized breaks every group larger than fair into near-equal contiguous
// pieces, larger pieces first. ok is false when no group needed splitting.
func splitOversized(groups []keyGroup, fair int) ([]unit, bool) {
	var units []unit
	splitAny := false
	for i, g := range groups {
		n := len(g.ids)
		if n <= fair {
			units = append(units, unit{group: i, ids: g.ids})
			continue
		}
		splitAny = true
		pieces := (n + fair - 1) / fair
		base, extra := n/pieces, n%pieces
		start := 0
		for p := 0; p < pieces; p++ {
			size := base
			if p < extra {
				size++
			}
			units = append(units, unit{group: i, ids: g.ids[start : start+size]})
			start += size
		}
	}
	return units, splitAny
}

// pack cuts the ordered unit sizes into exactly bins contiguous, non-empty runs.
// It first finds the smallest feasible capacity, then the largest floor that still
// admits an exact partition under that capacity, and rebuilds the partition from
// the back taking the latest cut each time so earlier bins fill first.
// len(sizes) must be >= bins. cuts has bins+1 entries; bin j holds
// sizes[cuts[j]:cuts[j+1]].
func pack(sizes []int, bins int) ([]int, int) {
	prefix := make([]int, len(sizes)+1)
	largest := 0
	for i, s := range sizes {
		prefix[i+1] = prefix[i] + s
		largest = max(largest, s)
	}
	total := prefix[len(sizes)]

	capacity := largest + sort.Search(total-largest+1, func(extra int) bool {
		return greedyBins(sizes, largest+extra) <= bins
	})

	// Largest floor in [1, capacity] with an exact partition; floor 1 always works.
	floor := sort.Search(capacity, func(f int) bool {
		_, ok := reachable(prefix, bins, f+2, capacity)
		return !ok
	})
	floor++

	reach, _ := reachable(prefix, bins, floor, capacity)

	cuts := make([]int, bins+1)
	cuts[bins] = len(sizes)
	end := len(sizes)
	for j := bins; j >= 1; j-- {
		lo, hi := predecessorRange(prefix, end, floor, capacity)
		for i := hi; i >= lo; i-- {
			if reach[j-1][i] {
				cuts[j-1] = i
				end = i
				break
			}
		}
	}
	return cuts, capacity
}

// greedyBins counts the bins needed when filling left to right up to capacity
func greedyBins(sizes []int, capacity int) int {
	count, load := 1, 0
	for _, s := range sizes {
		if load+s > capacity {
			count++
			load = s
			continue
		}
		load += s
	}
	return count
}

// reachable computes reach[j][i]: the first i units can form exactly j bins each
// holding between floor and capacity cards. ok reports reach[bins][n].
func reachable(prefix []int, bins, floor, capacity int) ([][]bool, bool) {
	n := len(prefix) - 1
	reach := make([][]bool, bins+1)
	for j := range reach {
		reach[j] = make([]bool, n+1)
	}
	reach[0][0] = true

	count := make([]int, n+2)
	for j := 1; j <= bins; j++ {
		for i := 0; i <= n; i++ {
			count[i+1] = count[i]
			if reach[j-1][i] {
				count[i+1]++
			}
		}
		for i := 1; i <= n; i++ {
			lo, hi := predecessorRange(prefix, i, floor, capacity)
			if lo <= hi && count[hi+1]-count[lo] > 0 {
				reach[j][i] = true
			}
		}
	}
	return reach, reach[bins][n]
}

// predecessorRange returns the index range [lo, hi] of cut points p < end for which
// the run prefix[end]-prefix[p] lies within [floor, capacity]
func predecessorRange(prefix []int, end, floor, capacity int) (int, int) {
	lo := sort.SearchInts(prefix, prefix[end]-capacity)
	hi := sort.SearchInts(prefix, prefix[end]-floor+1) - 1
	return lo, min(hi, end-1)
}
