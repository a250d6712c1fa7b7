package service

import (
	"io"
	"log/slog"

	"github.com/rs/xid"
)

func newID() string { return xid.New().String() }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
