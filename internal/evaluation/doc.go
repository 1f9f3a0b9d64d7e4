// Package evaluation records client location reports and persists them.
//
// Reports are grouped into one-second wall-clock buckets keyed
// "2006-01-02 15:04:05". Within a bucket a later report from the same client
// overwrites the earlier one. A Flusher writes the log to every configured
// Sink on a fixed interval:
//   - FileSink: the whole log as one indented JSON object (always on)
//   - PostgresSink: upserts of changed buckets
//   - MongoSink: one replaced document per changed bucket
//
// The log has its own lock and never blocks on connection handling.
package evaluation
