package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func ToZeroLogArray[T fmt.Stringer](arr []T) (ret *zerolog.Array) {
	ret = zerolog.Arr()

	for _, elem := range arr {
		ret = ret.Str(elem.String())
	}

	return ret
}

// SetupLogging points the global logger at a console writer on out and picks the level
// from the flags, with the DEBUG and TRACE environment variables as overrides.
func SetupLogging(out io.Writer, debug, trace bool) {
	zerolog.DurationFieldUnit = time.Second
	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05.000",
	})

	zerolog.SetGlobalLevel(LogLevel(debug || os.Getenv("DEBUG") != "", trace || os.Getenv("TRACE") != ""))
}

func LogLevel(debug, trace bool) zerolog.Level {
	switch {
	case trace:
		return zerolog.TraceLevel
	case debug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
