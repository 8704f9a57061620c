// Package eventsvc implements the event operations shared by the gRPC and
// HTTP transports: push, range read, removal, allow-list and aggregation
// queries. It checks the caller against the deployment allow-lists before
// touching the store and runs store work through the runtime executor.
package eventsvc
