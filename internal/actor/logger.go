package actor

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"
)

// Logger receives formatted lines from the controller and implementations.
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

// FileLogger writes to <dir>/actor.<id>.log and mirrors every line to glog.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
}

func NewFileLogger(dir, actorID string) (*FileLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("actor.%s.log", actorID))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open actor log: %w", err)
	}
	return &FileLogger{
		file:   f,
		logger: log.New(f, "", log.LstdFlags|log.Lmicroseconds),
	}, nil
}

func (l *FileLogger) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.write("INFO", msg)
	glog.InfoDepth(1, msg)
}

func (l *FileLogger) Warningf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.write("WARN", msg)
	glog.WarningDepth(1, msg)
}

func (l *FileLogger) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.write("ERROR", msg)
	glog.ErrorDepth(1, msg)
}

func (l *FileLogger) write(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	l.logger.Printf("[%s] %s", level, msg)
}

// Close flushes and closes the log file. Later writes only reach glog.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
