package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rzbill/evstore/pkg/consumer"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/rzbill/evstore/pkg/id"
	"github.com/rzbill/evstore/pkg/producer"
	"github.com/spf13/cobra"
)

// NewEventsCommand constructs the `events` command group and subcommands.
func NewEventsCommand() *cobra.Command {
	eventsCmd := &cobra.Command{Use: "events", Short: "Event log operations"}
	eventsCmd.PersistentFlags().String("caller", os.Getenv("EVSTORE_CALLER"), "Caller identity sent with every request (env EVSTORE_CALLER)")

	eventsCmd.AddCommand(
		newEventsPushCommand(),
		newEventsReadCommand(),
		newEventsRemoveCommand(),
		newEventsAllowlistsCommand(),
	)
	return eventsCmd
}

func callerFlag(cmd *cobra.Command) string {
	caller, _ := cmd.Flags().GetString("caller")
	return caller
}

// newEventsPushCommand constructs the `events push` subcommand.
func newEventsPushCommand() *cobra.Command {
	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "Push one event, or a file of JSON events, to the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("file")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			if batchSize <= 0 {
				batchSize = producer.DefaultMaxBatchSize
			}

			var evs []events.Event
			if file != "" {
				loaded, err := readEventsFile(file)
				if err != nil {
					return err
				}
				evs = loaded
			} else {
				ev, err := eventFromFlags(cmd)
				if err != nil {
					return err
				}
				evs = []events.Event{ev}
			}

			tr := getTransport(callerFlag(cmd))
			for len(evs) > 0 {
				n := min(batchSize, len(evs))
				batch := make([]events.IdempotentEvent, n)
				for i, ev := range evs[:n] {
					batch[i] = ev.WithToken(id.NewToken())
				}
				if err := tr.PushEvents(cmd.Context(), batch); err != nil {
					return err
				}
				evs = evs[n:]
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	pushCmd.Flags().String("name", "", "Event name")
	pushCmd.Flags().Int64("timestamp", 0, "Event time in unix milliseconds (default now)")
	pushCmd.Flags().String("user", "", "User the event belongs to")
	pushCmd.Flags().Bool("anonymize-user", false, "Store the user as a salted hash")
	pushCmd.Flags().String("source", "", "Source the event came from")
	pushCmd.Flags().Bool("anonymize-source", false, "Store the source as a salted hash")
	pushCmd.Flags().String("data", "", "Payload data")
	pushCmd.Flags().String("file", "", "Read events from a file with one JSON event per line")
	pushCmd.Flags().Int("batch-size", producer.DefaultMaxBatchSize, "Events per request when pushing a file")
	return pushCmd
}

func eventFromFlags(cmd *cobra.Command) (events.Event, error) {
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		return events.Event{}, errors.New("--name is required unless --file is set")
	}
	ts, _ := cmd.Flags().GetInt64("timestamp")
	if ts < 0 {
		return events.Event{}, fmt.Errorf("invalid --timestamp %d", ts)
	}
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	ev := events.Event{Name: name, Timestamp: uint64(ts)}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		ev.User = anonymizable(cmd, user, "anonymize-user")
	}
	if source, _ := cmd.Flags().GetString("source"); source != "" {
		ev.Source = anonymizable(cmd, source, "anonymize-source")
	}
	if data, _ := cmd.Flags().GetString("data"); data != "" {
		ev.Payload = []byte(data)
	}
	return ev, nil
}

func anonymizable(cmd *cobra.Command, value, flag string) *events.Anonymizable {
	if anon, _ := cmd.Flags().GetBool(flag); anon {
		return events.AnonymizedValue(value)
	}
	return events.PublicValue(value)
}

func readEventsFile(path string) ([]events.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []events.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}

// newEventsReadCommand constructs the `events read` subcommand.
func newEventsReadCommand() *cobra.Command {
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Read a window of stored events, or follow the log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, _ := cmd.Flags().GetUint64("start")
			length, _ := cmd.Flags().GetUint64("length")
			waitMs, _ := cmd.Flags().GetInt64("wait-ms")
			filter, _ := cmd.Flags().GetString("filter")
			follow, _ := cmd.Flags().GetBool("follow")
			limit, _ := cmd.Flags().GetInt("limit")

			tr := getTransport(callerFlag(cmd))
			enc := json.NewEncoder(cmd.OutOrStdout())

			if !follow {
				resp, err := tr.Events(cmd.Context(), events.EventsArgs{
					Start: start, Length: length, WaitMs: waitMs, Filter: filter,
				})
				if err != nil {
					return err
				}
				for _, ev := range resp.Events {
					if err := enc.Encode(decodedEvent(ev)); err != nil {
						return err
					}
				}
				return nil
			}

			if filter != "" {
				return errors.New("--filter cannot be combined with --follow")
			}
			if waitMs <= 0 {
				waitMs = 5000
			}
			c := consumer.New(tr, consumer.Options{BatchSize: length, WaitMs: waitMs})
			if start > 0 {
				c.SetSyncedUpTo(start - 1)
			}
			printed := 0
			for limit <= 0 || printed < limit {
				batch, err := c.NextBatch(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				for _, ev := range batch {
					if err := enc.Encode(decodedEvent(ev)); err != nil {
						return err
					}
					printed++
					if limit > 0 && printed >= limit {
						break
					}
				}
			}
			return nil
		},
	}
	readCmd.Flags().Uint64("start", 0, "First index to read")
	readCmd.Flags().Uint64("length", 100, "Maximum number of events per request")
	readCmd.Flags().Int64("wait-ms", 0, "Long-poll for up to this many milliseconds when nothing is stored")
	readCmd.Flags().String("filter", "", "CEL expression evaluated per event, e.g. 'name == \"login\"'")
	readCmd.Flags().Bool("follow", false, "Keep reading new events as they are stored")
	readCmd.Flags().Int("limit", 0, "Stop following after this many events (0 = unlimited)")
	return readCmd
}

// newEventsRemoveCommand constructs the `events remove` subcommand.
func newEventsRemoveCommand() *cobra.Command {
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove stored events up to and including an index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return errors.New("refusing to remove events without --confirm")
			}
			upTo, _ := cmd.Flags().GetUint64("up-to")
			removed, err := getTransport(callerFlag(cmd)).RemoveEvents(cmd.Context(), upTo)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "removed:", removed)
			return nil
		},
	}
	removeCmd.Flags().Uint64("up-to", 0, "Remove every event with an index at or below this")
	removeCmd.Flags().Bool("confirm", false, "Confirm removal")
	_ = removeCmd.MarkFlagRequired("up-to")
	return removeCmd
}

// newEventsAllowlistsCommand constructs the `events allowlists` subcommand.
func newEventsAllowlistsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "allowlists",
		Short: "Show which callers may push, read and remove events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lists, err := getTransport(callerFlag(cmd)).Allowlists(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(lists)
		},
	}
}
