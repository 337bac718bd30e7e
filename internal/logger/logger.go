// Package logger wraps log/slog with the attribute constructors used
// throughout this module, so call sites read as
// log.WarnContext(ctx, "message", logger.Error(err), logger.NodeID(id)).
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// New builds a *slog.Logger writing to w (stderr when w is nil). json
// selects slog.JSONHandler over the default text handler.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Default returns a text logger at Info level writing to stderr.
func Default() *slog.Logger {
	return New(nil, slog.LevelInfo, false)
}

// Discard returns a logger that drops every record, for tests that don't
// care about log output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

func NodeID(id string) slog.Attr {
	return slog.String("node_id", id)
}

func Peer(id string) slog.Attr {
	return slog.String("peer_id", id)
}

func Proposal(n uint64) slog.Attr {
	return slog.Uint64("proposal_number", n)
}

func Round(n uint64) slog.Attr {
	return slog.Uint64("round", n)
}

func Reputation(score int) slog.Attr {
	return slog.Int("reputation", score)
}

// Request attaches a correlation id so a proposer's round log lines,
// including its duplicate-apply skip, can be grepped together. The id is
// not sent on the wire, so acceptor log lines do not carry it.
func Request(id string) slog.Attr {
	return slog.String("request_id", id)
}

// ContextWithRequestID attaches a correlation id to ctx purely for log
// enrichment; it carries no cancellation semantics of its own.
type requestIDKey struct{}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
