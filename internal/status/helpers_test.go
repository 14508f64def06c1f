package status

import (
	"io"

	"github.com/labstack/gommon/log"
)

func testLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}
