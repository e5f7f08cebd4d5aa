package fetch

import "github.com/kaze-kaze/file-transfer/internal/domain"

// splitRanges divides [0, totalSize) into at most parts contiguous,
// non-overlapping inclusive byte ranges covering the resource exactly
// once, in order.
func splitRanges(totalSize int64, parts int) []domain.ByteRange {
	if parts < 1 {
		parts = 1
	}
	partSize := (totalSize + int64(parts) - 1) / int64(parts)

	var ranges []domain.ByteRange
	for i := 0; i < parts; i++ {
		start := int64(i) * partSize
		if start >= totalSize {
			break
		}
		end := start + partSize - 1
		if end > totalSize-1 {
			end = totalSize - 1
		}
		ranges = append(ranges, domain.ByteRange{Start: start, End: end})
		if end == totalSize-1 {
			break
		}
	}
	return ranges
}

// workerCount scales the number of ranged workers with the resource
// size: at least two, capped at max.
func workerCount(totalSize, minSplitSize int64, max int) int {
	n := int(totalSize/(2*minSplitSize)) + 1
	if n < 2 {
		n = 2
	}
	if n > max {
		n = max
	}
	return n
}
