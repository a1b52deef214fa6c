package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"XCam/internal/utils"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logDefaultMaxSize   = 100 // MB
	logDefaultMaxBackup = 5
	logDefaultQueueSize = 1000
)

type logMessage struct {
	level   Level
	message string
}

// AsyncLogQueue decouples log producers from disk writes. Entries are
// queued on a channel and drained by a single goroutine, so hot paths
// (fan-out pumps, connection loops) never block on file I/O.
type AsyncLogQueue struct {
	logPrefix    string
	logMaxSize   int
	logMaxBackup int
	logQueueSize int
	debugEnabled bool

	infoLog      *log.Logger
	errorLog     *log.Logger
	infoLogName  string
	errorLogName string

	chanQueue chan logMessage
	wg        sync.WaitGroup
}

type AsyncLogQueueOption func(*AsyncLogQueue)

func WithLogMaxSize(logMaxSize int) AsyncLogQueueOption {
	return func(a *AsyncLogQueue) {
		a.logMaxSize = logMaxSize
	}
}

func WithLogMaxBackup(logMaxBackup int) AsyncLogQueueOption {
	return func(a *AsyncLogQueue) {
		a.logMaxBackup = logMaxBackup
	}
}

func WithLogQueueSize(logQueueSize int) AsyncLogQueueOption {
	return func(a *AsyncLogQueue) {
		a.logQueueSize = logQueueSize
	}
}

func WithDebug(enabled bool) AsyncLogQueueOption {
	return func(a *AsyncLogQueue) {
		a.debugEnabled = enabled
	}
}

func NewAsyncLogQueue(product string, opts ...AsyncLogQueueOption) (*AsyncLogQueue, error) {
	logQueue := &AsyncLogQueue{
		logPrefix:    product + " ",
		infoLogName:  fmt.Sprintf("%s.log", product),
		errorLogName: fmt.Sprintf("%s.error.log", product),
		logMaxSize:   logDefaultMaxSize,
		logMaxBackup: logDefaultMaxBackup,
		logQueueSize: logDefaultQueueSize,
	}
	for _, opt := range opts {
		opt(logQueue)
	}

	err := logQueue.initLog()
	if err != nil {
		return nil, err
	}
	return logQueue, nil
}

func (a *AsyncLogQueue) Stop() {
	close(a.chanQueue)
	a.wg.Wait()
}

// Log implements Writer.
func (a *AsyncLogQueue) Log(level Level, format string, args ...interface{}) {
	if level == Debug && !a.debugEnabled {
		return
	}
	select {
	case a.chanQueue <- logMessage{level: level, message: fmt.Sprintf(format, args...)}:
	default:
		// queue full, drop instead of blocking the caller
	}
}

func (a *AsyncLogQueue) handleLog(msg logMessage) {
	switch msg.level {
	case Debug, Info, Warn:
		if a.infoLog != nil {
			a.infoLog.Output(2, labelFor(msg.level)+msg.message)
		}
	case Error:
		if a.errorLog != nil {
			a.errorLog.Output(2, labelFor(msg.level)+msg.message)
		}
	}
}

func labelFor(level Level) string {
	switch level {
	case Debug:
		return "DEBUG "
	case Info:
		return "INFO "
	case Warn:
		return "WARN "
	case Error:
		return "ERROR "
	}
	return ""
}

func (a *AsyncLogQueue) initLog() error {
	a.chanQueue = make(chan logMessage, a.logQueueSize)

	exePath, err := utils.Executable()
	if err != nil {
		return fmt.Errorf("AsyncLogQueue.initLog error:%v", err)
	}
	logPath := filepath.Join(filepath.Dir(exePath), "logs")
	if err = utils.EnsureDir(logPath); err != nil {
		return fmt.Errorf("AsyncLogQueue.initLog error:%v", err)
	}

	a.infoLog = a.openLogger(filepath.Join(logPath, a.infoLogName))
	a.errorLog = a.openLogger(filepath.Join(logPath, a.errorLogName))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for msg := range a.chanQueue {
			a.handleLog(msg)
		}
	}()

	return nil
}

func (a *AsyncLogQueue) openLogger(path string) *log.Logger {
	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    a.logMaxSize,
		MaxBackups: a.logMaxBackup,
	}
	return log.New(io.MultiWriter(os.Stdout, rotated), a.logPrefix, log.Ldate|log.Ltime|log.Lshortfile)
}

func (a *AsyncLogQueue) Logger(level Level) *log.Logger {
	switch level {
	case Debug, Info, Warn:
		return a.infoLog
	case Error:
		return a.errorLog
	}
	return nil
}
