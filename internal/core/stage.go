package core

import "strings"

// Fallback scripts expected on the remote login-shell PATH.
const (
	ShutdownScript = "shutdown.sh"
	StartupScript  = "startup.sh"
	ShowLogScript  = "showLogs.sh"
)

// StageCommands holds the optional explicit command of each remote stage.
// Blank means "use the fallback script".
type StageCommands struct {
	Shutdown string
	Startup  string
	ShowLog  string
}

// ResolveStageCommand returns "sh <explicit>" when an explicit command is set,
// otherwise the fallback script run through a login shell so the remote PATH applies.
func ResolveStageCommand(explicit, fallbackScript string) string {
	if cmd := strings.TrimSpace(explicit); cmd != "" {
		return "sh " + cmd
	}
	return "bash -lc " + fallbackScript
}
