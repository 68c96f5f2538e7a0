package logger

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"sync"
)

// LogBufferWriter is an io.Writer that feeds complete lines into a LogBuffer.
// It understands the "[LEVEL] [nodeID] message" layout produced by this package.
type LogBufferWriter struct {
	buffer *LogBuffer
	buf    bytes.Buffer
	mu     sync.Mutex
}

var lineRegex = regexp.MustCompile(`^(?:\[(DEBUG|INFO|WARN|ERROR)\]\s*)?(?:\[([^\]]+)\]\s*)?(.*)$`)

// NewLogBufferWriter creates a new writer that writes to the log buffer
func NewLogBufferWriter(buffer *LogBuffer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer: buffer,
	}
}

// Write implements io.Writer
func (lw *LogBufferWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Buffer until we get a newline
	lw.buf.Write(p)

	for {
		line, err := lw.buf.ReadString('\n')
		if err == io.EOF {
			// keep the partial line for the next write
			lw.buf.WriteString(line)
			break
		}
		if err != nil {
			return len(p), err
		}

		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			continue
		}

		level, nodeID, message := parseLine(line)
		lw.buffer.Add(level, nodeID, message)
	}

	return len(p), nil
}

func parseLine(line string) (Level, string, string) {
	level := LevelInfo
	nodeID := "system"
	message := line

	matches := lineRegex.FindStringSubmatch(line)
	if len(matches) == 4 {
		if matches[1] != "" {
			if parsed, err := ParseLevel(matches[1]); err == nil {
				level = parsed
			}
		}
		if matches[2] != "" {
			nodeID = matches[2]
		}
		message = matches[3]
	}
	return level, nodeID, message
}
