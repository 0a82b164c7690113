package handoff

import (
	"io"
	"os"
	"path/filepath"
)

// copyFile copies into a hidden temp file beside dest and renames it into
// place, so the workflow never picks up a partial sheet. Modification time
// is carried over.
func copyFile(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")

	dst, err := os.Create(tempDest)
	if err != nil {
		return err
	}

	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	if err = dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	// Explicitly close before renaming
	if err = dst.Close(); err != nil {
		os.Remove(tempDest)
		return err
	}

	if err = os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}

	return os.Chtimes(destPath, info.ModTime(), info.ModTime())
}

// sameDir compares directories after resolving them to absolute paths.
func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(filepath.Dir(a))
	absB, errB := filepath.Abs(filepath.Dir(b))
	if errA != nil || errB != nil {
		return filepath.Dir(a) == filepath.Dir(b)
	}
	return absA == absB
}
