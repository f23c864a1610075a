package ports

import "context"

// ForwarderDirectory maps a stream id to the address of the process
// instance currently hosting its forwarder. A single process only
// ever has one entry for a stream it hosts, but the directory exists
// so a fleet of ingest instances behind a load balancer can answer
// "where is this stream published" without a shared in-memory map.
type ForwarderDirectory interface {
	Set(ctx context.Context, streamID, instanceAddr string) error
	Get(ctx context.Context, streamID string) (instanceAddr string, ok bool, err error)
	Delete(ctx context.Context, streamID string) error
	ListStreams(ctx context.Context) ([]string, error)
}
