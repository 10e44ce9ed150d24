// SPDX-License-Identifier: Unlicense OR MIT

package paging

import "golang.org/x/exp/constraints"

// AlignUp rounds v up to a multiple of align, a power of two.
func AlignUp[T constraints.Unsigned](v, align T) T {
	return (v + align - 1) &^ (align - 1)
}

// AlignDown rounds v down to a multiple of align, a power of two.
func AlignDown[T constraints.Unsigned](v, align T) T {
	return v &^ (align - 1)
}

// Pages returns the number of 4 KiB pages covering n bytes.
func Pages(n uint64) uint64 {
	return AlignUp(n, uint64(PageSize4K)) / uint64(PageSize4K)
}
