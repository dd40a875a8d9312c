package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReporter appends recovered panics to crash.log.
type CrashReporter struct {
	path   string
	logger *Logger
	exit   func(int)
	mu     sync.Mutex
}

func NewCrashReporter(path string, logger *Logger) *CrashReporter {
	if logger == nil {
		logger = Nop()
	}
	return &CrashReporter{path: path, logger: logger, exit: os.Exit}
}

// Record appends one crash block. Failures to write are reported on stderr.
func (c *CrashReporter) Record(component string, value interface{}, stack []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.WithContext("component", component).Error("panic: %v", value)

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "crash log: %v\n", err)
		return
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crash log: %v\n", err)
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "=== %s panic in %s ===\n%v\n%s\n",
		time.Now().UTC().Format(time.RFC3339), component, value, stack)
}

// Guard is deferred at the top of a background goroutine. It records a
// panic and lets the goroutine end; the rest of the process keeps running.
//
//	go func() {
//		defer crash.Guard("uploader")
//		...
//	}()
func (c *CrashReporter) Guard(component string) {
	if r := recover(); r != nil {
		c.Record(component, r, debug.Stack())
	}
}

// GuardMain is deferred in main. It records a panic and exits with status 2.
func (c *CrashReporter) GuardMain() {
	if r := recover(); r != nil {
		c.Record("main", r, debug.Stack())
		c.exit(2)
	}
}
