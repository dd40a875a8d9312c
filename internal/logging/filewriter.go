package logging

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	fileBufferSize = 64 * 1024
	flushInterval  = 5 * time.Second
)

// FileWriter is a buffered append-only log file that rotates itself when it
// grows past the rotator's threshold. Safe for concurrent use.
type FileWriter struct {
	path    string
	rotator *LogRotator

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	timer  *time.Timer
	closed bool
}

// NewFileWriter opens path for appending (creating parent directories) and
// starts the periodic flush.
func NewFileWriter(path string, maxSizeMB, maxBackups int) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fw := &FileWriter{
		path:    path,
		rotator: NewLogRotator(path, maxSizeMB, maxBackups),
	}
	if err := fw.open(); err != nil {
		return nil, err
	}

	fw.timer = time.AfterFunc(flushInterval, fw.tick)
	return fw, nil
}

func (fw *FileWriter) open() error {
	f, err := os.OpenFile(fw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", fw.path, err)
	}
	fw.file = f
	fw.buf = bufio.NewWriterSize(f, fileBufferSize)
	return nil
}

func (fw *FileWriter) tick() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return
	}
	if err := fw.flushLocked(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] log flush: %v\n", err)
	}
	fw.timer.Reset(flushInterval)
}

// Write buffers p. Implements io.Writer.
func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return 0, errors.New("file writer is closed")
	}
	return fw.buf.Write(p)
}

// Flush writes buffered bytes to disk and rotates if needed.
func (fw *FileWriter) Flush() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return errors.New("file writer is closed")
	}
	return fw.flushLocked()
}

func (fw *FileWriter) flushLocked() error {
	if err := fw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush log buffer: %w", err)
	}

	info, err := fw.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if !fw.rotator.ShouldRotate(info.Size()) {
		return nil
	}

	if err := fw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file before rotation: %w", err)
	}
	rotateErr := fw.rotator.Rotate()
	// Reopen regardless so logging continues on the current file.
	if err := fw.open(); err != nil {
		return err
	}
	if rotateErr != nil {
		return fmt.Errorf("failed to rotate log file: %w", rotateErr)
	}
	return nil
}

// Close flushes and closes the file. Safe to call more than once.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return nil
	}
	fw.closed = true
	fw.timer.Stop()

	flushErr := fw.buf.Flush()
	if err := fw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return flushErr
}
