package ingest

// Chunk is a contiguous slice of records sent as one request.
type Chunk struct {
	// Number is 1-based.
	Number int
	Total  int
	IsLast bool
	// Size is the planned chunk size, used to rebase row numbers. The last
	// chunk may hold fewer records.
	Size    int
	Records []Record
}

// Plan partitions records into ceil(len/size) ordered chunks. The chunks
// share the backing array of records.
func Plan(records []Record, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}

	total := (len(records) + size - 1) / size
	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := min(start+size, len(records))
		chunks = append(chunks, Chunk{
			Number:  i + 1,
			Total:   total,
			IsLast:  i == total-1,
			Size:    size,
			Records: records[start:end:end],
		})
	}
	return chunks, nil
}
