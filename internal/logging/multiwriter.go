package logging

import (
	"bytes"
	"io"
)

// MultiWriter routes formatted lines between console and file. Without a
// file every line goes to the console; with one, DEBUG and INFO go to the
// file only and WARN and ERROR go to both.
type MultiWriter struct {
	console io.Writer
	file    io.Writer
}

func NewMultiWriter(console, file io.Writer) *MultiWriter {
	return &MultiWriter{console: console, file: file}
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	if m.file == nil {
		return m.console.Write(p)
	}

	if lvl := lineLevel(p); lvl == "WARN" || lvl == "ERROR" {
		// console failures never block the file copy
		m.console.Write(p)
	}
	return m.file.Write(p)
}

// lineLevel extracts LEVEL from "[ts] LEVEL [component] ...".
func lineLevel(p []byte) string {
	i := bytes.Index(p, []byte("] "))
	if i < 0 {
		return ""
	}
	rest := p[i+2:]
	j := bytes.IndexByte(rest, ' ')
	if j < 0 {
		return ""
	}
	return string(rest[:j])
}
