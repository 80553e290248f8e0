package campaign

// BatchRange is the half-open row index range [Start, End) of one batch.
type BatchRange struct {
	Start int
	End   int
}

// Len returns the number of rows in the range.
func (r BatchRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// TotalBatches returns ceil(totalRows / batchSize).
func TotalBatches(totalRows, batchSize int) int {
	if totalRows <= 0 || batchSize <= 0 {
		return 0
	}
	return (totalRows + batchSize - 1) / batchSize
}

// RangeFor returns the rows processed on the given cycle.
func RangeFor(cycle, batchSize, totalRows int) BatchRange {
	start := cycle * batchSize
	end := min((cycle+1)*batchSize, totalRows)
	if start > totalRows {
		start = totalRows
	}
	return BatchRange{Start: start, End: end}
}
