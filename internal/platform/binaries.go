package platform

import (
	"fmt"
	"os/exec"
)

// OptionalOpenerBinaries are the URL launchers tried per environment
var OptionalOpenerBinaries = map[string]string{
	"xdg-open": "Linux desktop",
	"open":     "macOS",
	"cmd.exe":  "WSL",
}

// ValidateDependencies checks the container runtime CLI is reachable and
// reports which browser openers are missing.
func ValidateDependencies(runtime string) ([]string, error) {
	if _, err := exec.LookPath(runtime); err != nil {
		return nil, fmt.Errorf("required dependency: '%s' not found in PATH", runtime)
	}

	var notes []string
	for bin, env := range OptionalOpenerBinaries {
		if _, err := exec.LookPath(bin); err != nil {
			notes = append(notes, fmt.Sprintf("%s (%s) not found; browser sign-in will not open automatically there", bin, env))
		}
	}
	return notes, nil
}
