package utils

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"product-aggregator/internal/types"
)

// KillBrowsers force-terminates Chrome processes whose command line contains
// marker. It is the last resort after a graceful close did not finish and is
// best effort: failures are logged only.
func KillBrowsers(ctx context.Context, marker string, logger types.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := killCommand(ctx, runtime.GOOS, marker)

	logger.Warnf("Force killing browser processes matching %q", marker)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// pkill exits 1 when nothing matched
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			logger.Debugf("No browser processes matched %q", marker)
			return
		}
		logger.Warnf("Force kill of browser processes failed: %v (%s)", err, out)
		return
	}
	logger.Infof("Force killed browser processes matching %q", marker)
}

// killCommand builds the platform command terminating processes whose command line contains marker
func killCommand(ctx context.Context, goos, marker string) *exec.Cmd {
	if goos == "windows" {
		// taskkill cannot filter on arguments, so match the command line through CIM
		script := fmt.Sprintf(
			"Get-CimInstance Win32_Process | Where-Object { $_.ProcessId -ne $PID -and $_.CommandLine -and $_.CommandLine.Contains('%s') } | "+
				"ForEach-Object { Stop-Process -Id $_.ProcessId -Force -ErrorAction SilentlyContinue }",
			strings.ReplaceAll(marker, "'", "''"))
		return exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	}
	return exec.CommandContext(ctx, "pkill", "-9", "-f", "--", marker)
}
