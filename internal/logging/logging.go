package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Setup configures zerolog for the process. Development gets a console
// writer at debug level; anything else logs JSON at info.
func Setup(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		writer := zerolog.ConsoleWriter{Out: os.Stdout}
		return zerolog.New(writer).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}
