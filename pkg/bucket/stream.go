package bucket

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
)

// Record framing:
//   [4-byte big-endian length, high bit set as record marker]
//   [canonical XDR body]
const recordMarker = uint32(0x80000000)

// StreamWriter appends framed XDR records to a bucket file, feeding the
// exact emitted bytes into a streaming content hash.
type StreamWriter struct {
	path        string
	file        *os.File
	w           *bufio.Writer
	syncOnClose bool
}

func newStreamWriter(path string, syncOnClose bool) (*StreamWriter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("open bucket file %s: %w", path, err)
	}
	return &StreamWriter{
		path:        path,
		file:        file,
		w:           bufio.NewWriter(file),
		syncOnClose: syncOnClose,
	}, nil
}

// WriteOne frames and writes a single record. The hasher and byte counter
// observe the exact bytes emitted, header included.
func (s *StreamWriter) WriteOne(rec Record, hasher hash.Hash, bytesPut *uint64) error {
	var body bytes.Buffer
	if _, err := xdr.Marshal(&body, rec.xdrValue()); err != nil {
		return fmt.Errorf("marshal bucket record: %w", err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(body.Len())|recordMarker)

	if _, err := s.w.Write(header[:]); err != nil {
		return fmt.Errorf("write record header: %w", err)
	}
	if _, err := s.w.Write(body.Bytes()); err != nil {
		return fmt.Errorf("write record body: %w", err)
	}

	if hasher != nil {
		hasher.Write(header[:])
		hasher.Write(body.Bytes())
	}
	if bytesPut != nil {
		*bytesPut += uint64(len(header)) + uint64(body.Len())
	}
	return nil
}

// Close flushes, optionally fsyncs, and closes the file.
func (s *StreamWriter) Close() error {
	if err := s.w.Flush(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("flush bucket file %s: %w", s.path, err)
	}
	if s.syncOnClose {
		if err := s.file.Sync(); err != nil {
			_ = s.file.Close()
			return fmt.Errorf("sync bucket file %s: %w", s.path, err)
		}
	}
	return s.file.Close()
}

// StreamReader sequentially decodes framed records from a bucket file.
// Each reader owns its file handle; concurrent readers open their own.
type StreamReader struct {
	path    string
	variant Variant
	file    *os.File
	r       *bufio.Reader
	pos     int64
}

// OpenStream opens a bucket file for sequential reads.
func OpenStream(path string, variant Variant) (*StreamReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bucket stream %s: %w", path, err)
	}
	return &StreamReader{
		path:    path,
		variant: variant,
		file:    file,
		r:       bufio.NewReader(file),
	}, nil
}

// Seek positions the reader at an absolute byte offset.
func (s *StreamReader) Seek(offset int64) error {
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek bucket stream %s: %w", s.path, err)
	}
	s.r.Reset(s.file)
	s.pos = offset
	return nil
}

// Pos returns the byte offset of the next record to be read.
func (s *StreamReader) Pos() int64 {
	return s.pos
}

// readFrame reads one framed record body. Returns ok=false at a clean end
// of stream; a partial frame is an error, not an end of stream.
func (s *StreamReader) readFrame() ([]byte, bool, error) {
	var header [4]byte
	if _, err := io.ReadFull(s.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: truncated record header in %s", ErrBucketCorrupt, s.path)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size&recordMarker == 0 {
		return nil, false, fmt.Errorf("%w: missing record marker in %s", ErrBadRecordFraming, s.path)
	}
	size &^= recordMarker

	body := make([]byte, size)
	if _, err := io.ReadFull(s.r, body); err != nil {
		return nil, false, fmt.Errorf("%w: truncated record body in %s", ErrBucketCorrupt, s.path)
	}
	s.pos += 4 + int64(len(body))
	return body, true, nil
}

func decodeRecord(variant Variant, body []byte) (Record, error) {
	if variant == VariantHotArchive {
		var e xdr.HotArchiveBucketEntry
		if err := xdr.SafeUnmarshal(body, &e); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrBucketCorrupt, err)
		}
		return Record{Hot: &e}, nil
	}
	var e xdr.BucketEntry
	if err := xdr.SafeUnmarshal(body, &e); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrBucketCorrupt, err)
	}
	return Record{Live: &e}, nil
}

func (s *StreamReader) decode(body []byte) (Record, error) {
	return decodeRecord(s.variant, body)
}

// ReadRecordAt decodes the framed record at an absolute offset of an
// arbitrary ReaderAt, for exact-offset reads that bypass the sequential
// stream. ok=false reports a clean end of data at the offset.
func ReadRecordAt(r io.ReaderAt, off int64, variant Variant) (Record, bool, error) {
	var header [4]byte
	n, err := r.ReadAt(header[:], off)
	if n < len(header) {
		if errors.Is(err, io.EOF) {
			if n == 0 {
				return Record{}, false, nil
			}
			return Record{}, false, fmt.Errorf("%w: truncated record header", ErrBucketCorrupt)
		}
		return Record{}, false, fmt.Errorf("read record header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size&recordMarker == 0 {
		return Record{}, false, ErrBadRecordFraming
	}
	size &^= recordMarker

	body := make([]byte, size)
	if _, err := r.ReadAt(body, off+4); err != nil {
		return Record{}, false, fmt.Errorf("%w: truncated record body", ErrBucketCorrupt)
	}

	rec, err := decodeRecord(variant, body)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// ReadOne decodes the next record. ok=false signals end of stream.
func (s *StreamReader) ReadOne(rec *Record) (bool, error) {
	body, ok, err := s.readFrame()
	if err != nil || !ok {
		return false, err
	}
	decoded, err := s.decode(body)
	if err != nil {
		return false, err
	}
	*rec = decoded
	return true, nil
}

// ReadPage scans forward at most pageSize bytes for a record whose key
// equals key. The scan stops early once a greater key is seen, since
// records are in ascending key order.
func (s *StreamReader) ReadPage(rec *Record, key xdr.LedgerKey, pageSize int64) (bool, error) {
	target := ledger.MustMarshalKey(key)

	var consumed int64
	for consumed < pageSize {
		body, ok, err := s.readFrame()
		if err != nil || !ok {
			return false, err
		}
		consumed += 4 + int64(len(body))

		decoded, err := s.decode(body)
		if err != nil {
			return false, err
		}
		if decoded.IsMeta() {
			continue
		}

		recKey, err := decoded.Key()
		if err != nil {
			return false, err
		}
		switch bytes.Compare(ledger.MustMarshalKey(recKey), target) {
		case 0:
			*rec = decoded
			return true, nil
		case 1:
			return false, nil
		}
	}
	return false, nil
}

// Close releases the underlying file handle.
func (s *StreamReader) Close() error {
	return s.file.Close()
}
