package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// Environment hides the platform-specific parts of browser sign-in: where
// the browser saves files and how to open a URL in it.
type Environment interface {
	Name() string
	DownloadsDir() string
	OpenURL(ctx context.Context, rawURL string) error
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

var validURL = regexp.MustCompile(`^https?://\S+$`)

// ValidURL only admits http(s) URLs without whitespace, since the value ends
// up as a shell argument on WSL and Windows.
func ValidURL(rawURL string) bool {
	return validURL.MatchString(rawURL)
}

// Options carries the probes Detect uses. Zero values mean "use the host".
type Options struct {
	GOOS            string
	ProcVersionPath string
	Home            string
	UserProfile     string
	Run             Runner
}

func (o *Options) fill() {
	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}
	if o.ProcVersionPath == "" {
		o.ProcVersionPath = "/proc/version"
	}
	if o.Home == "" {
		o.Home, _ = os.UserHomeDir()
	}
	if o.UserProfile == "" {
		o.UserProfile = os.Getenv("USERPROFILE")
	}
	if o.Run == nil {
		o.Run = ExecRunner
	}
}

// Detect resolves the environment once; callers keep the result for the
// lifetime of the process.
func Detect(ctx context.Context, opts Options) Environment {
	opts.fill()

	switch {
	case opts.GOOS == "windows":
		return &Windows{downloads: filepath.Join(opts.UserProfile, "Downloads"), run: opts.Run}
	case opts.GOOS == "linux" && IsWSL(opts.ProcVersionPath):
		return newWSL(ctx, opts)
	default:
		return &Native{goos: opts.GOOS, downloads: filepath.Join(opts.Home, "Downloads"), run: opts.Run}
	}
}

// IsWSL reports whether the kernel identifies as Microsoft's.
func IsWSL(procVersionPath string) bool {
	data, err := os.ReadFile(procVersionPath)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// Native covers macOS and desktop Linux.
type Native struct {
	goos      string
	downloads string
	run       Runner
}

func (n *Native) Name() string         { return "native" }
func (n *Native) DownloadsDir() string { return n.downloads }

func (n *Native) OpenURL(ctx context.Context, rawURL string) error {
	if !ValidURL(rawURL) {
		return fmt.Errorf("invalid URL: %s", rawURL)
	}
	opener := "xdg-open"
	if n.goos == "darwin" {
		opener = "open"
	}
	if out, err := n.run(ctx, opener, rawURL); err != nil {
		return fmt.Errorf("%s failed: %w: %s", opener, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// WSL opens URLs in the Windows browser and watches the Windows Downloads
// folder through its /mnt mount.
type WSL struct {
	downloads string
	run       Runner
}

func newWSL(ctx context.Context, opts Options) *WSL {
	w := &WSL{downloads: filepath.Join(opts.Home, "Downloads"), run: opts.Run}

	out, err := opts.Run(ctx, "powershell.exe", "-NoProfile", "-Command", "echo $Env:USERPROFILE")
	profile := strings.TrimSpace(string(out))
	if err != nil || profile == "" {
		return w
	}

	winPath := profile + `\Downloads`
	out, err = opts.Run(ctx, "wslpath", winPath)
	if converted := strings.TrimSpace(string(out)); err == nil && converted != "" {
		w.downloads = converted
	}
	return w
}

func (w *WSL) Name() string         { return "wsl" }
func (w *WSL) DownloadsDir() string { return w.downloads }

func (w *WSL) OpenURL(ctx context.Context, rawURL string) error {
	if !ValidURL(rawURL) {
		return fmt.Errorf("invalid URL: %s", rawURL)
	}
	if out, err := w.run(ctx, "cmd.exe", "/c", "start", `""`, rawURL); err != nil {
		return fmt.Errorf("cmd.exe start failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

type Windows struct {
	downloads string
	run       Runner
}

func (w *Windows) Name() string         { return "windows" }
func (w *Windows) DownloadsDir() string { return w.downloads }

func (w *Windows) OpenURL(ctx context.Context, rawURL string) error {
	if !ValidURL(rawURL) {
		return fmt.Errorf("invalid URL: %s", rawURL)
	}
	if out, err := w.run(ctx, "cmd", "/c", "start", `""`, rawURL); err != nil {
		return fmt.Errorf("start failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
