package commands

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Connections       map[string]*ConnectionStats
	TestCases         map[string]int
	Statuses          map[wire.Status]int
	Injections        map[string]int
	RejectedInjection int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Role      log.Role
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
		TestCases:         make(map[string]int),
		Statuses:          make(map[wire.Status]int),
		Injections:        make(map[string]int),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.ConnectionID != "" {
		conn, ok := s.Connections[event.ConnectionID]
		if !ok {
			conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp, Role: event.LocalRole}
			s.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}
	}

	if event.TestCaseID != "" {
		s.TestCases[event.TestCaseID]++
	}
	if event.Message != nil && event.Message.Status != nil {
		s.Statuses[*event.Message.Status]++
	}
	if event.Injection != nil {
		s.Injections[event.Injection.Name]++
		if event.Injection.Rejected {
			s.RejectedInjection++
		}
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats reads the log at path and prints its statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Closure Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryInjection, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.Statuses) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Response Statuses:")
		statuses := make([]wire.Status, 0, len(stats.Statuses))
		for s := range stats.Statuses {
			statuses = append(statuses, s)
		}
		slices.Sort(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "  %-24s %d\n", s.String()+":", stats.Statuses[s])
		}
	}

	if len(stats.Injections) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Injections: %d rejected\n", stats.RejectedInjection)
		names := make([]string, 0, len(stats.Injections))
		for n := range stats.Injections {
			names = append(names, n)
		}
		slices.Sort(names)
		for _, n := range names {
			fmt.Fprintf(w, "  %-24s %d\n", n+":", stats.Injections[n])
		}
	}

	if len(stats.TestCases) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Test Cases:")
		ids := make([]string, 0, len(stats.TestCases))
		for id := range stats.TestCases {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "  %-24s %d events\n", id, stats.TestCases[id])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s %d events, duration %s\n",
				shortenConnID(c.id), c.stats.Role, c.stats.Events, duration)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
