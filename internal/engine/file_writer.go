package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// filesPrefix is where the container mounts n8n-files.
const filesPrefix = "/files/"

// copyResults copies generated files out of n8n-files into the output
// directory. Missing files are logged and skipped.
func (m *RunManager) copyResults(files []string) []string {
	m.mu.Lock()
	outputDir := m.outputDir
	m.mu.Unlock()

	if outputDir == "" {
		if len(files) > 0 {
			var b strings.Builder
			for _, f := range files {
				fmt.Fprintf(&b, "\n  - %s", f)
			}
			m.log.Info("Generated files:%s", b.String())
			m.log.Warn("No output directory set - files remain in n8n-files/")
		}
		return nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		m.log.Error("Could not create output directory %s: %v", outputDir, err)
		return nil
	}

	var copied []string
	for _, rel := range files {
		src := m.resultPath(rel)
		if _, err := os.Stat(src); err != nil {
			m.log.Warn("File not found: %s", src)
			continue
		}

		dest := filepath.Join(outputDir, filepath.Base(src))
		if err := copyPreservingTimes(src, dest); err != nil {
			m.log.Error("Error copying %s: %v", rel, err)
			continue
		}
		m.log.Info("Copied: %s -> %s", filepath.Base(src), dest)
		copied = append(copied, dest)
	}

	if len(copied) > 0 {
		var b strings.Builder
		for _, c := range copied {
			fmt.Fprintf(&b, "\n  - %s", filepath.Base(c))
		}
		m.log.Info("Successfully copied %d file(s) to output directory:%s", len(copied), b.String())
	}
	return copied
}

// resultPath maps a container path onto the host n8n-files tree. Paths that
// would climb out of it are pinned to their base name.
func (m *RunManager) resultPath(rel string) string {
	rel = strings.TrimPrefix(rel, filesPrefix)
	clean := filepath.FromSlash(strings.TrimLeft(rel, "/"))
	if !filepath.IsLocal(clean) {
		clean = filepath.Base(clean)
	}
	return filepath.Join(m.filesDir, clean)
}

func copyPreservingTimes(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}

	// Explicitly close before touching times
	if err := dst.Close(); err != nil {
		return err
	}

	return os.Chtimes(destPath, info.ModTime(), info.ModTime())
}
