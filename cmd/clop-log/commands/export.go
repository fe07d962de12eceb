package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/clopstate/clop-go/pkg/log"
)

// RunExport writes the log at path as JSON lines or CSV to output, or to
// stdout when output is empty.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if event.Message != nil && event.Message.Payload != nil {
			msg := *event.Message
			msg.Payload = jsonSafe(msg.Payload)
			event.Message = &msg
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

var csvHeader = []string{
	"timestamp", "connection_id", "role", "direction", "layer", "category",
	"test_case", "type", "message_id", "detail",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var msgID, detail string
		switch {
		case event.Message != nil:
			msgID = strconv.FormatUint(uint64(event.Message.MessageID), 10)
			if event.Message.Status != nil {
				detail = event.Message.Status.String()
			}
		case event.StateChange != nil:
			detail = event.StateChange.OldState + "->" + event.StateChange.NewState
		case event.Injection != nil:
			detail = event.Injection.Name
		case event.Error != nil:
			detail = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.LocalRole.String(),
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.TestCaseID,
			eventType(event),
			msgID,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return cw.Error()
}
