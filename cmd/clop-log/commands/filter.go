package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/clopstate/clop-go/pkg/log"
)

// FilterOptions selects the events the filter command keeps.
type FilterOptions struct {
	Output     string
	ConnID     string
	DeviceID   string
	TestCaseID string
	TimeStart  string
	TimeEnd    string
	Layer      string
	Direction  string
	Category   string
}

// buildFilter turns command-line options into a log filter.
func buildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: opts.ConnID,
		DeviceID:     opts.DeviceID,
		TestCaseID:   opts.TestCaseID,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if opts.Layer != "" {
		l, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// RunFilter copies the matching events of the log at path to opts.Output
// and returns how many were written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := buildFilter(opts)
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
}
