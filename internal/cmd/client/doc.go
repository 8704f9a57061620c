// Package client provides the `evstore` command-line client.
//
// The CLI talks to the evstore gRPC and HTTP endpoints to push, read and
// remove events and to query the aggregation index from a terminal. It is
// primarily intended for developers and operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it
// defaults to http://127.0.0.1:8080 and can be overridden with
// EVSTORE_HTTP. The gRPC address is read from EVSTORE_GRPC (default
// 127.0.0.1:50051). The caller identity checked against the server's
// allow-lists comes from --caller or EVSTORE_CALLER.
//
// Usage
//
//	evstore events push --caller ingest --name login --user alice --anonymize-user
//	evstore events push --caller ingest --file events.jsonl --batch-size 500
//
//	evstore events read --caller analytics --start 0 --length 50
//	evstore events read --caller analytics --filter 'name == "login" && has_user'
//
//	# Follow the log, long-polling for new events
//	evstore events read --caller analytics --follow --wait-ms 10000 --limit 100
//
//	# Remove everything up to index 41 (requires --confirm)
//	evstore events remove --caller janitor --up-to 41 --confirm
//
//	evstore events allowlists
//
//	evstore aggregates --date 2024-03-01 --grouping hourly --page 1
//
// Notes
//
//   - push attaches a fresh idempotency token to every event. A file holds
//     one JSON object per line with name, timestamp, user, source and a
//     base64 payload.
//   - read prints one JSON object per event with the payload rendered as
//     payload_json, payload_text or payload_b64.
//   - aggregates uses the HTTP API exposed by the evstore server.
package client
