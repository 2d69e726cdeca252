package utils

import (
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

type Logger struct {
	out     *log.Logger
	verbose bool
}

func NewLogger(verbose bool) *Logger {
	return NewLoggerTo(os.Stderr, verbose)
}

func NewLoggerTo(w io.Writer, verbose bool) *Logger {
	return &Logger{
		out:     log.New(w, "", log.LstdFlags),
		verbose: verbose,
	}
}

// Discard returns a logger that drops everything, for tests and library use.
func Discard() *Logger {
	return NewLoggerTo(io.Discard, false)
}

func (l *Logger) Verbose() bool {
	return l.verbose
}

func (l *Logger) LogError(format string, args ...interface{}) {
	l.out.Printf("ERROR: "+format, args...)
}

func (l *Logger) LogWarning(format string, args ...interface{}) {
	l.out.Printf("WARNING: "+format, args...)
}

func (l *Logger) LogInfo(format string, args ...interface{}) {
	l.out.Printf("INFO: "+format, args...)
}

func (l *Logger) LogDebug(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.out.Printf("DEBUG: "+format, args...)
}

func (l *Logger) LogDownload(path string, bytes int64, duration time.Duration) {
	l.out.Printf("INFO: downloaded %s (%s in %v)", path, humanize.Bytes(uint64(bytes)), duration.Round(time.Millisecond))
}

func (l *Logger) LogSkipped(path string) {
	l.LogDebug("already downloaded: %s", path)
}

func (l *Logger) LogRequest(r *http.Request) {
	userAgent := l.getHeaderValue(r, "User-Agent", "Unknown")
	accept := l.getHeaderValue(r, "Accept", "Any")

	l.LogDebug("API Request: %s %s - User-Agent: %s - Accept: %s", r.Method, r.URL.Path, userAgent, accept)
}

func (l *Logger) LogResponse(r *http.Request, start time.Time) {
	l.LogDebug("API Response: %s %s - %v", r.Method, r.URL.Path, time.Since(start))
}

func (l *Logger) LogCORS(r *http.Request) {
	l.LogDebug("API: OPTIONS %s - CORS preflight request", r.URL.Path)
}

func (l *Logger) LogNotFound(method, path string) {
	l.out.Printf("API: 404 - Not Found: %s %s", method, path)
}

func (l *Logger) LogMethodNotAllowed(method, path string) {
	l.out.Printf("API: 405 - Method Not Allowed: %s %s", method, path)
}

func (l *Logger) LogJSONError(err error) {
	l.out.Printf("Error encoding JSON response: %v", err)
}

func (l *Logger) LogDatabaseOperation(operation string, err error) {
	if err != nil {
		l.out.Printf("Database %s ERROR: %v", operation, err)
	} else {
		l.LogDebug("Database %s: SUCCESS", operation)
	}
}

func (l *Logger) LogFileOperation(operation, filePath string, err error) {
	if err != nil {
		l.out.Printf("File %s ERROR: %s - %v", operation, filePath, err)
	} else {
		l.LogDebug("File %s SUCCESS: %s", operation, filePath)
	}
}

func (l *Logger) LogServerStart(addr string, useHTTPS bool) {
	protocol := "HTTP"
	if useHTTPS {
		protocol = "HTTPS"
	}
	l.out.Printf("Starting %s server on %s", protocol, addr)
}

func (l *Logger) getHeaderValue(r *http.Request, key, fallback string) string {
	if value := r.Header.Get(key); value != "" {
		return value
	}
	return fallback
}
