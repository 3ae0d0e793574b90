package timetable

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Encode writes the snapshot as JSON. This is the wire form shared by the
// cache, the backup slot, and (zstd-wrapped) the fallback file.
func (s *Snapshot) Encode(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Marshal returns the snapshot's JSON wire form as bytes.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode reads a snapshot from its JSON wire form.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(s.Groups) == 0 {
		return nil, fmt.Errorf("decode snapshot: no groups")
	}
	return &s, nil
}

// Unmarshal parses a snapshot from bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if len(s.Groups) == 0 {
		return nil, fmt.Errorf("unmarshal snapshot: no groups")
	}
	return &s, nil
}

// WriteFile persists the snapshot as zstd-compressed JSON. The write goes
// through a temp file in the same directory plus rename, so a crash mid
// write never corrupts the previous fallback.
func (s *Snapshot) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.json.zst")
	if err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	encoder, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot file: create encoder: %w", err)
	}
	if err := s.Encode(encoder); err != nil {
		encoder.Close()
		tmp.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot file: close encoder: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot previously persisted with WriteFile.
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	defer f.Close()

	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: create decoder: %w", err)
	}
	defer decoder.Close()

	return Decode(decoder)
}
