package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var logger = log.New()

func init() {
	logger.Out = os.Stdout
	env := os.Getenv("ENV")
	// LOG_TO_FILE=true writes to logs/<date><env>.log under the working directory.
	if os.Getenv("LOG_TO_FILE") == "true" {
		if f, err := openLogFile(env); err != nil {
			log.Warnf("Failed to open log file: %v, falling back to stdout", err)
		} else {
			logger.Out = f
		}
	}
	Configure(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
}

func openLogFile(env string) (*os.File, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	logsDir := filepath.Join(cwd, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s%s.log", time.Now().Format("2006-01-02"), env)
	return os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
}

// Configure sets the formatter ("json" or "text") and level. Empty or unknown
// values keep JSON output at debug level.
func Configure(format, level string) {
	if strings.EqualFold(format, "text") {
		logger.Formatter = &log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano}
	} else {
		logger.Formatter = &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)
}

func GetLogger() *log.Entry {
	function, file, line, _ := runtime.Caller(1)

	functionObject := runtime.FuncForPC(function)
	entry := logger.WithFields(log.Fields{
		"requestId": time.Now().UnixNano() / int64(time.Millisecond),
		"function":  functionObject.Name(),
		"file":      file,
		"line":      line,
	})

	return entry
}
