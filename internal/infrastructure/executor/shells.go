package executor

import (
	"os/exec"
	"sort"
)

var knownShells = []string{"sh", "bash", "zsh", "dash", "ksh", "fish", "pwsh", "powershell", "cmd"}

// AvailableShells lists the known shells found on PATH, sorted.
func AvailableShells() []string {
	var found []string
	for _, name := range knownShells {
		if _, err := exec.LookPath(name); err == nil {
			found = append(found, name)
		}
	}
	sort.Strings(found)
	return found
}
