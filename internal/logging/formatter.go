package logging

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SourceLocation is the file, line and function of a log call
type SourceLocation struct {
	File     string
	Line     int
	Function string
}

// Entry is one structured log record before formatting
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Source    SourceLocation
	Message   string
	Fields    map[string]interface{}
}

// formatEntry renders
//
//	[2006-01-02 15:04:05] LEVEL [component] file.go:42 pkg.Func message k=v k2=v2
//
// with fields sorted by key so lines are stable.
func formatEntry(e Entry) string {
	var sb strings.Builder

	sb.WriteString("[")
	sb.WriteString(e.Time.Format("2006-01-02 15:04:05"))
	sb.WriteString("] ")
	sb.WriteString(e.Level.String())
	sb.WriteString(" [")
	sb.WriteString(e.Component)
	sb.WriteString("] ")
	sb.WriteString(e.Source.File)
	sb.WriteString(":")
	sb.WriteString(strconv.Itoa(e.Source.Line))
	sb.WriteString(" ")
	sb.WriteString(e.Source.Function)
	sb.WriteString(" ")
	sb.WriteString(sanitizeMessage(e.Message))

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(formatValue(e.Fields[k]))
		}
	}

	sb.WriteString("\n")
	return sb.String()
}

// formatValue quotes values containing whitespace so k=v pairs stay splittable.
func formatValue(v interface{}) string {
	s := sanitizeMessage(fmt.Sprintf("%v", v))
	if strings.ContainsAny(s, " \t\n\"") {
		return strconv.Quote(s)
	}
	return s
}

// sanitizeMessage replaces control characters other than \n and \t with a space.
func sanitizeMessage(msg string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, msg)
}
