package downloader

import (
	"fmt"
	"io"
	"os"
)

// readError marks a failure reading the response body, as opposed to a
// failure writing the staged file.
type readError struct{ err error }

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

type bodyReader struct{ r io.Reader }

func (b bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &readError{err}
	}
	return n, err
}

// writeStaged streams body into path+".part" and renames on completion so a
// concurrent directory scan never sees a half-written sheet.
func writeStaged(path string, body io.Reader) error {
	partPath := path + ".part"

	f, err := os.OpenFile(partPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("could not open staging file: %w", err)
	}

	if _, err := io.Copy(f, bodyReader{body}); err != nil {
		f.Close()
		os.Remove(partPath)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(partPath)
		return err
	}

	// Close before renaming so Windows releases the handle
	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return err
	}

	if err := os.Rename(partPath, path); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}
