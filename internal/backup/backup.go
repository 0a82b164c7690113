package backup

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

const (
	dataPrefix = "n8n-data/"
	envEntry   = ".env"

	// firstRunMarker is written by the container's entrypoint on first boot.
	firstRunMarker = ".first_run_done"
	// pluginsDir holds community nodes the container reinstalls itself.
	pluginsDir = "nodes"
)

type runningChecker interface {
	IsRunning(ctx context.Context) (bool, error)
}

// Service archives and restores the container's persisted state.
type Service struct {
	dataDir    string
	envFile    string
	archiveDir string
	container  runningChecker
	log        *logger.Logger
	now        func() time.Time
}

func NewService(dataDir, envFile, archiveDir string, c runningChecker, log *logger.Logger) *Service {
	return &Service{
		dataDir:    dataDir,
		envFile:    envFile,
		archiveDir: archiveDir,
		container:  c,
		log:        log,
		now:        time.Now,
	}
}

type ExportResult struct {
	Path    string `json:"path"`
	Files   int    `json:"files"`
	Size    int64  `json:"size"`
	EnvKeys int    `json:"env_keys"`
}

type ImportResult struct {
	Files   int    `json:"files"`
	EnvKeys int    `json:"env_keys"`
	Message string `json:"message"`
}

func (s *Service) ensureStopped(ctx context.Context, action string) error {
	running, err := s.container.IsRunning(ctx)
	if err != nil {
		// Without a runtime listing the container cannot be holding files
		s.log.Warn("Could not check container state: %v", err)
		return nil
	}
	if running {
		return fmt.Errorf("%w: cannot %s while it is running, please stop the container first", domain.ErrContainerRunning, action)
	}
	return nil
}

// Export zips the data directory and .env into a timestamped archive.
func (s *Service) Export(ctx context.Context, progress Progress) (*ExportResult, error) {
	if err := s.ensureStopped(ctx, "export"); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.archiveDir, 0755); err != nil {
		return nil, classify("export", err)
	}

	if _, err := os.Stat(s.dataDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("n8n-data directory not found: %s: %w", s.dataDir, fs.ErrNotExist)
		}
		return nil, classify("export", err)
	}

	files, err := s.collect()
	if err != nil {
		return nil, classify("export", err)
	}

	hasEnv := fileExists(s.envFile)
	total := len(files)
	if hasEnv {
		total++
	}
	if total == 0 {
		return nil, domain.ErrNothingToExport
	}

	res := &ExportResult{
		Path: filepath.Join(s.archiveDir, fmt.Sprintf("n8n_export_%s.zip", s.now().Format("20060102_150405"))),
	}
	if hasEnv {
		res.EnvKeys = s.countEnvKeys()
	}

	if err := s.writeArchive(ctx, res.Path, files, hasEnv, newTracker(total, progress)); err != nil {
		os.Remove(res.Path)
		return nil, classify("export", err)
	}

	res.Files = total
	if info, err := os.Stat(res.Path); err == nil {
		res.Size = info.Size()
	}

	s.log.Info("Export successful: %s (%d files, %s)", res.Path, res.Files, humanize.Bytes(uint64(res.Size)))
	return res, nil
}

// collect lists data files relative to dataDir, skipping the first-run
// marker and installed plugins.
func (s *Service) collect() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.dataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Name() == pluginsDir && p != s.dataDir {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Name() == firstRunMarker {
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func (s *Service) writeArchive(ctx context.Context, dest string, files []string, withEnv bool, t *tracker) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(out)

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			zw.Close()
			out.Close()
			return err
		}
		if err := addFile(zw, filepath.Join(s.dataDir, rel), dataPrefix+filepath.ToSlash(rel)); err != nil {
			zw.Close()
			out.Close()
			return err
		}
		t.step()
	}

	if withEnv {
		if err := addFile(zw, s.envFile, envEntry); err != nil {
			zw.Close()
			out.Close()
			return err
		}
		t.step()
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	t.finish()
	return nil
}

func addFile(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// Import restores an archive produced by Export, overwriting existing files.
// Nothing is written unless the archive is a readable zip whose entries all
// stay inside their targets.
func (s *Service) Import(ctx context.Context, archivePath string, progress Progress) (*ImportResult, error) {
	if err := s.ensureStopped(ctx, "import"); err != nil {
		return nil, err
	}

	if !fileExists(archivePath) {
		return nil, fmt.Errorf("archive file not found: %s: %w", archivePath, fs.ErrNotExist)
	}

	ok, err := hasZipSignature(archivePath)
	if err != nil {
		return nil, classify("import", err)
	}
	if !ok {
		return nil, domain.ErrNotZip
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotZip, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if _, _, err := s.target(f.Name); err != nil {
			return nil, err
		}
	}

	res := &ImportResult{}
	t := newTracker(len(zr.File), progress)
	wroteEnv := false

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dest, isDir, _ := s.target(f.Name)
		switch {
		case dest == "":
		case isDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return nil, classify("import", err)
			}
		default:
			if err := extract(f, dest); err != nil {
				return nil, classify("import", err)
			}
			res.Files++
			if dest == s.envFile {
				wroteEnv = true
			}
		}
		t.step()
	}
	t.finish()

	if wroteEnv {
		res.EnvKeys = s.countEnvKeys()
	}

	res.Message = fmt.Sprintf("Successfully imported n8n data and .env file from %s", filepath.Base(archivePath))
	s.log.Info("%s", res.Message)
	return res, nil
}

// target maps an archive entry onto the filesystem. Entries outside
// n8n-data/ and .env map to "" and are ignored.
func (s *Service) target(name string) (dest string, isDir bool, err error) {
	if name == envEntry {
		return s.envFile, false, nil
	}
	if !strings.HasPrefix(name, dataPrefix) {
		return "", false, nil
	}

	rel := strings.TrimPrefix(name, dataPrefix)
	isDir = strings.HasSuffix(rel, "/")
	rel = strings.TrimSuffix(rel, "/")
	if rel == "" {
		return s.dataDir, true, nil
	}

	clean := path.Clean(rel)
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", false, fmt.Errorf("archive entry escapes n8n-data: %s", name)
	}
	return filepath.Join(s.dataDir, filepath.FromSlash(clean)), isDir, nil
}

func extract(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *Service) countEnvKeys() int {
	vars, err := godotenv.Read(s.envFile)
	if err != nil {
		s.log.Warn("Could not parse %s: %v", s.envFile, err)
		return 0
	}
	return len(vars)
}

// classify separates permission failures, which almost always mean the
// container still holds the files, from everything else.
func classify(action string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", domain.ErrPermission, err)
	}
	return fmt.Errorf("%s failed: %w", action, err)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
