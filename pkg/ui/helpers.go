package ui

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// commentLeaders maps source file extensions to their line-comment
// leader. Unlisted extensions fall back to "//".
var commentLeaders = map[string]string{
	".go":    "//",
	".js":    "//",
	".jsx":   "//",
	".ts":    "//",
	".tsx":   "//",
	".c":     "//",
	".h":     "//",
	".cc":    "//",
	".cpp":   "//",
	".hpp":   "//",
	".cs":    "//",
	".java":  "//",
	".kt":    "//",
	".swift": "//",
	".rs":    "//",
	".scala": "//",
	".dart":  "//",
	".php":   "//",
	".zig":   "//",
	".py":    "#",
	".rb":    "#",
	".sh":    "#",
	".bash":  "#",
	".zsh":   "#",
	".fish":  "#",
	".pl":    "#",
	".r":     "#",
	".yml":   "#",
	".yaml":  "#",
	".toml":  "#",
	".tf":    "#",
	".nix":   "#",
	".ex":    "#",
	".exs":   "#",
	".sql":   "--",
	".lua":   "--",
	".hs":    "--",
	".elm":   "--",
	".vim":   `"`,
	".el":    ";;",
	".clj":   ";;",
	".cljs":  ";;",
	".lisp":  ";;",
	".scm":   ";;",
	".erl":   "%",
	".hrl":   "%",
}

// CommentLeaderFor picks the line-comment leader for a file path by its
// extension.
func CommentLeaderFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if leader, ok := commentLeaders[ext]; ok {
		return leader
	}
	return "//"
}

// OpenBrowser opens url in the platform browser. The command is started
// and left alone; browsers detach themselves.
func OpenBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// FormatScanDuration renders a scan duration for the status bar.
func FormatScanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Millisecond:
		return "<1ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}
