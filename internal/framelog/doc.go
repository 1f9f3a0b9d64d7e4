// Package framelog appends every frame the relay receives or sends to a
// per-run JSON lines file named after the process start time, for example
// logs/2024-05-01-12-30-15.log.
//
// Each line is a slog JSON record:
//
//	{"time":"...","level":"INFO","msg":"recv","conn":"<uuid>","client":"A","frame":{...}}
//
// Recording is asynchronous: callers enqueue into a growable ring queue and a
// single worker writes to disk, so connection goroutines never wait on I/O.
package framelog
