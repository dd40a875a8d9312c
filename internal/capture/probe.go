package capture

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const probeTimeout = 2 * time.Second

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// XdotoolProbe queries X11 through xdotool and xprop.
type XdotoolProbe struct {
	run runFunc
}

func NewXdotoolProbe() *XdotoolProbe {
	return &XdotoolProbe{run: runCommand}
}

// ActiveWindow returns the WM_CLASS class name and the window title.
func (p *XdotoolProbe) ActiveWindow(ctx context.Context) (string, string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := p.run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return "", ""
	}
	id := strings.TrimSpace(string(out))

	var title string
	if out, err := p.run(ctx, "xdotool", "getwindowname", id); err == nil {
		title = strings.TrimSpace(string(out))
	}

	var app string
	if out, err := p.run(ctx, "xprop", "-id", id, "WM_CLASS"); err == nil {
		app = parseWMClass(string(out))
	}
	return app, title
}

// parseWMClass extracts the class from
//
//	WM_CLASS(STRING) = "navigator", "Firefox"
func parseWMClass(s string) string {
	parts := strings.Split(s, `"`)
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

// DefaultProbe picks the best probe available on this machine.
func DefaultProbe() WindowProbe {
	if runtime.GOOS == "linux" {
		if _, err := exec.LookPath("xdotool"); err == nil {
			return NewXdotoolProbe()
		}
	}
	return NoProbe{}
}
