package log

import (
	"fmt"
	l "log"
	"os"
	"strings"
)

type LogLevel int

const (
	NoneLevel  LogLevel = iota
	ErrorLevel LogLevel = iota
	InfoLevel  LogLevel = iota
	TraceLevel LogLevel = iota
)

var (
	Level    = NoneLevel
	TraceLog = l.New(os.Stderr, "[BOLT][TRACE]", l.LstdFlags)
	InfoLog  = l.New(os.Stderr, "[BOLT][INFO]", l.LstdFlags)
	ErrorLog = l.New(os.Stderr, "[BOLT][ERROR]", l.LstdFlags)
)

func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		Level = TraceLevel
	case "info":
		Level = InfoLevel
	case "error":
		Level = ErrorLevel
	default:
		Level = NoneLevel
	}
}

func Trace(args ...interface{}) {
	if Level >= TraceLevel {
		TraceLog.Println(args...)
	}
}

func Tracef(msg string, args ...interface{}) {
	if Level >= TraceLevel {
		TraceLog.Printf(msg, args...)
	}
}

// TraceHex logs a hex dump of b under the given label, but only builds
// the dump when trace logging is actually enabled - SprintHex allocates
// and we don't want that cost at InfoLevel on every chunk read/write.
func TraceHex(label string, b []byte) {
	if Level >= TraceLevel {
		TraceLog.Printf("%s (%d bytes):\n%s", label, len(b), SprintHex(b))
	}
}

// SprintHex returns a formatted string of the byte slice in hexadecimal,
// sixteen bytes per line with a gap every four bytes.
func SprintHex(b []byte) string {
	output := "\t"
	for i, c := range b {
		output += fmt.Sprintf("%02x", c)
		switch {
		case (i+1)%16 == 0:
			output += "\n\t"
		case (i+1)%4 == 0:
			output += "  "
		default:
			output += " "
		}
	}
	return output
}

func Info(args ...interface{}) {
	if Level >= InfoLevel {
		InfoLog.Println(args...)
	}
}

func Infof(msg string, args ...interface{}) {
	if Level >= InfoLevel {
		InfoLog.Printf(msg, args...)
	}
}

func Error(args ...interface{}) {
	if Level >= ErrorLevel {
		ErrorLog.Println(args...)
	}
}

func Errorf(msg string, args ...interface{}) {
	if Level >= ErrorLevel {
		ErrorLog.Printf(msg, args...)
	}
}

func Fatal(args ...interface{}) {
	if Level >= ErrorLevel {
		ErrorLog.Println(args...)
		os.Exit(1)
	}
}

func Fatalf(msg string, args ...interface{}) {
	if Level >= ErrorLevel {
		ErrorLog.Printf(msg, args...)
		os.Exit(1)
	}
}

func Panic(args ...interface{}) {
	if Level >= ErrorLevel {
		ErrorLog.Println(args...)
		panic(fmt.Sprint(args...))
	}
}

func Panicf(msg string, args ...interface{}) {
	if Level >= ErrorLevel {
		ErrorLog.Printf(msg, args...)
		panic(fmt.Sprintf(msg, args...))
	}
}
