// Package transport provides the wire-level connections used to speak
// to a journal platform's record API, over HTTP or a remote shell.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Server type identifiers.
const (
	TypeHTTP = "http"
	TypeSSH  = "ssh"
)

// ErrUnknownType indicates a server definition with an unsupported type.
var ErrUnknownType = errors.New("unknown server type")

// Server describes a configured source or target endpoint.
type Server struct {
	Name     string
	Type     string // TypeHTTP or TypeSSH
	Host     string
	Username string
	Password string
	Port     int
}

// Transport moves JSON records between this process and a platform.
// Implementations carry no business logic; they return decoded JSON
// and propagate wire failures to the caller unchanged.
type Transport interface {
	// Get fetches the JSON value at path. An empty response body is
	// returned as an empty list, never an error.
	Get(ctx context.Context, path string, params map[string]string) (any, error)

	// Put submits data to path. A list is submitted one element at a
	// time, sequentially; the first failing element aborts the rest.
	Put(ctx context.Context, path string, data any) error
}

// New builds a Transport for a server definition.
func New(server Server) (Transport, error) {
	switch server.Type {
	case TypeHTTP, "":
		return NewHTTP(server), nil
	case TypeSSH:
		return NewSSH(server), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, server.Type)
	}
}
