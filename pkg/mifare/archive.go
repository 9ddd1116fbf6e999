package mifare

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CaptureRecord is one nested capture round as stored in a capture archive.
// The archive lets a solver be re-run offline against the same material.
type CaptureRecord struct {
	Time        time.Time       `cbor:"time"`
	UID         uint32          `cbor:"uid"`
	Distance    uint32          `cbor:"dist"`
	KnownBlock  int             `cbor:"known_block"`
	KnownType   KeyType         `cbor:"known_type"`
	TargetBlock int             `cbor:"target_block"`
	TargetType  KeyType         `cbor:"target_type"`
	Static      bool            `cbor:"static"`
	Captures    []NestedCapture `cbor:"atks"`
}

// CaptureArchive appends CBOR-encoded CaptureRecords to a file.
type CaptureArchive struct {
	f   *os.File
	enc *cbor.Encoder
}

// CreateCaptureArchive creates (or truncates) an archive file.
func CreateCaptureArchive(path string) (*CaptureArchive, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture archive: %w", err)
	}
	return &CaptureArchive{f: f, enc: cbor.NewEncoder(f)}, nil
}

// WriteCapture appends one record.
func (a *CaptureArchive) WriteCapture(rec CaptureRecord) error {
	if err := a.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}
	return nil
}

// Close flushes and closes the archive file.
func (a *CaptureArchive) Close() error {
	if a == nil || a.f == nil {
		return nil
	}
	return a.f.Close()
}

// ReadCaptureArchive decodes every record of an archive stream.
func ReadCaptureArchive(r io.Reader) ([]CaptureRecord, error) {
	dec := cbor.NewDecoder(r)
	var records []CaptureRecord
	for {
		var rec CaptureRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("decode capture %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}
