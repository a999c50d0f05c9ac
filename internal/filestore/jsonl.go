package filestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// record is one line of the store file.
type record struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// readJSONL reads a JSONL file and returns each non-empty, parseable record.
// Malformed lines are skipped so one corrupt write cannot hide the rest.
func readJSONL(path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil || rec.Key == "" {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
