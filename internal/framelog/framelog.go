package framelog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLayout names a run's log file from its start time.
const FileLayout = "2006-01-02-15-04-05"

// Frame directions, used as the record message.
const (
	DirReceived = "recv"
	DirSent     = "send"
)

type entry struct {
	at     time.Time
	dir    string
	conn   string
	client string
	frame  []byte
}

// Recorder writes frame records for one process run. A nil *Recorder
// discards everything.
type Recorder struct {
	path    string
	file    *os.File
	out     *bufio.Writer
	handler slog.Handler
	queue   *queue[entry]
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	now       func() time.Time
}

// Open creates dir if needed and starts a recorder writing to
// dir/<startedAt formatted with FileLayout>.log.
func Open(dir string, startedAt time.Time, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, startedAt.Format(FileLayout)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open frame log: %w", err)
	}

	out := bufio.NewWriter(f)
	r := &Recorder{
		path:    path,
		file:    f,
		out:     out,
		handler: slog.NewJSONHandler(out, nil),
		queue:   newQueue[entry](256),
		logger:  logger,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go r.run()

	logger.Info("frame log opened", "path", path)
	return r, nil
}

// Path returns the log file path.
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Received records a frame read from conn. client is empty before the
// connection registers.
func (r *Recorder) Received(conn, client string, frame []byte) {
	r.record(DirReceived, conn, client, frame)
}

// Sent records a frame written to conn.
func (r *Recorder) Sent(conn, client string, frame []byte) {
	r.record(DirSent, conn, client, frame)
}

func (r *Recorder) record(dir, conn, client string, frame []byte) {
	if r == nil {
		return
	}
	e := entry{
		at:     r.now(),
		dir:    dir,
		conn:   conn,
		client: client,
		frame:  append([]byte(nil), frame...),
	}
	r.queue.push(e)
}

// Close stops accepting records, writes everything queued, and closes the
// file. Safe to call more than once.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		r.queue.close()
		<-r.done

		err := r.out.Flush()
		r.closeErr = errors.Join(err, r.file.Close())
	})
	return r.closeErr
}

func (r *Recorder) run() {
	defer close(r.done)

	ctx := context.Background()
	for {
		batch, ok := r.queue.popAll()
		if !ok {
			return
		}
		for _, e := range batch {
			rec := slog.NewRecord(e.at, slog.LevelInfo, e.dir, 0)
			rec.AddAttrs(
				slog.String("conn", e.conn),
				slog.String("client", e.client),
				frameAttr(e.frame),
			)
			if err := r.handler.Handle(ctx, rec); err != nil {
				r.logger.Warn("frame log write failed", "error", err)
			}
		}
		if err := r.out.Flush(); err != nil {
			r.logger.Warn("frame log flush failed", "error", err)
		}
	}
}

// frameAttr embeds valid JSON as-is and anything else as a string.
func frameAttr(frame []byte) slog.Attr {
	if json.Valid(frame) {
		return slog.Any("frame", json.RawMessage(frame))
	}
	return slog.String("frame", string(frame))
}
