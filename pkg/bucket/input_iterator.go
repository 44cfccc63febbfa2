package bucket

// InputIterator yields the records of a bucket in on-disk order. The
// underlying file opens lazily on the first advance; exhaustion is not an
// error. Usage follows the scanner pattern:
//
//	in := NewInputIterator(b)
//	defer in.Close()
//	for in.Next() {
//		rec := in.Record()
//		...
//	}
//	if err := in.Err(); err != nil { ... }
type InputIterator struct {
	bucket *Bucket
	stream *StreamReader
	rec    Record
	opened bool
	done   bool
	err    error
}

// NewInputIterator creates an iterator over a bucket. The empty sentinel
// yields no records.
func NewInputIterator(b *Bucket) *InputIterator {
	return &InputIterator{bucket: b}
}

// Next advances to the next record, reporting false at end of stream or
// on error.
func (in *InputIterator) Next() bool {
	if in.done || in.err != nil {
		return false
	}
	if !in.opened {
		if in.bucket.IsEmpty() {
			in.done = true
			return false
		}
		stream, err := in.bucket.OpenStream()
		if err != nil {
			in.err = err
			return false
		}
		in.stream = stream
		in.opened = true
	}

	ok, err := in.stream.ReadOne(&in.rec)
	if err != nil {
		in.err = err
		return false
	}
	if !ok {
		in.done = true
		return false
	}
	return true
}

// Record returns the record read by the last successful Next.
func (in *InputIterator) Record() Record {
	return in.rec
}

// Err returns the first error encountered, nil on clean exhaustion.
func (in *InputIterator) Err() error {
	return in.err
}

// Close releases the file handle, if one was opened.
func (in *InputIterator) Close() error {
	if in.stream == nil {
		return nil
	}
	return in.stream.Close()
}
