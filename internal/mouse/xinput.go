package mouse

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/BGMLAI/exoskull/internal/apperr"
)

// XInputHook reads raw button presses from `xinput test-xi2 --root`.
type XInputHook struct {
	Binary string
}

func (h XInputHook) Listen(ctx context.Context, presses chan<- int) error {
	bin := h.Binary
	if bin == "" {
		bin = "xinput"
	}
	cmd := exec.CommandContext(ctx, bin, "test-xi2", "--root")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return apperr.Device("mouse hook unavailable", err)
	}

	scanErr := scanPresses(ctx, out, presses)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if scanErr != nil {
		return scanErr
	}
	return waitErr
}

// scanPresses parses blocks like
//
//	EVENT type 15 (RawButtonPress)
//	    device: 2 (11)
//	    detail: 8
func scanPresses(ctx context.Context, r io.Reader, presses chan<- int) error {
	sc := bufio.NewScanner(r)
	inPress := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "EVENT type"):
			inPress = strings.Contains(line, "(RawButtonPress)")
		case inPress && strings.HasPrefix(line, "detail:"):
			inPress = false
			button, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "detail:")))
			if err != nil {
				continue
			}
			select {
			case presses <- button:
			case <-ctx.Done():
				return nil
			}
		}
	}
	return sc.Err()
}
