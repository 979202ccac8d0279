package logger

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var buf bytes.Buffer

var useLogFile = false
var logFileOpenFailCount = 0
var logFileOpenFailLimit = 20
var logFileName string

var (
	infoLogger  = newLogger(&buf, "INFO: ")
	debugLogger = newLogger(&buf, "DEBUG: ")
	warnLogger  = newLogger(&buf, "WARN: ")
	errorLogger = newLogger(&buf, "ERROR: ")
	fatalLogger = newLogger(&buf, "FATAL: ")
)

// Set up the logger to use a log file. Invoking it will start logging to file
// as well as console. Must provide the path to where the log files should go.
func UseConfigFile(logPath string) error {
	useLogFile = true

	err := os.MkdirAll(logPath, os.ModePerm)
	if err != nil {
		return err
	}

	logFileName = filepath.Join(logPath, time.Now().Format("2006-01-02_150405")+".log")
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return err
	}
	defer logFile.Close()

	return nil
}

// Write the log to console, or console and log file. Buffer is reset automatically.
func write() {
	if logFileOpenFailCount > logFileOpenFailLimit {
		useLogFile = false
		Warn("Log file failed to open too many times. Logging to file has been disabled to prevent further errors")
	}

	if useLogFile {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
		if err != nil {
			errorLogger.logWrite("could not open log file: %v", err)
			logFileOpenFailCount += 1
		}
		defer logFile.Close()

		f := bufio.NewWriter(logFile)
		f.WriteString(buf.String())
		f.Flush()

		fmt.Print(buf.String())
	} else {
		fmt.Print(buf.String())
	}

	buf.Reset()
}

func logAs(lw *logWriter, format any, v ...any) {
	switch a := format.(type) {
	case string:
		lw.logWrite(a, v...)
	case error:
		lw.logWrite("%v", a)
	default:
		lw.logWrite("%+v", a)
	}
	write()
}

func Info(format any, v ...any) {
	logAs(infoLogger, format, v...)
}

func Debug(format any, v ...any) {
	logAs(debugLogger, format, v...)
}

func Warn(format any, v ...any) {
	logAs(warnLogger, format, v...)
}

func Error(format any, v ...any) {
	logAs(errorLogger, format, v...)
}

// This will log the error, then call os.Exit(1)
func Fatal(format any, v ...any) {
	logAs(fatalLogger, format, v...)
	os.Exit(1)
}
