package server

import "context"

// Server is a long-running component started and stopped with the process.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
