package replica

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

// PeerLogFormat names a peer log file encoding.
type PeerLogFormat string

const (
	PeerLogJSON PeerLogFormat = "json"
	PeerLogYAML PeerLogFormat = "yaml"
)

// FormatForPath picks the peer log format from a file extension; anything but .yaml/.yml is JSON.
func FormatForPath(path string) PeerLogFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return PeerLogYAML
	default:
		return PeerLogJSON
	}
}

// DecodePeerLog parses a list of events. YAML documents use the same field names as the JSON wire shape.
func DecodePeerLog(data []byte, format PeerLogFormat) ([]events.Event, error) {
	if format == PeerLogYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var decoded []events.Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("parse peer log: %w", err)
	}
	for index, event := range decoded {
		if err := event.Validate(); err != nil {
			return nil, events.NewEventError(index, event, err)
		}
	}
	return decoded, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var document any
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&document); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse peer log yaml: %w", err)
	}
	converted, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("convert peer log yaml: %w", err)
	}
	return converted, nil
}

// EncodePeerLog writes events as an indented JSON array.
func EncodePeerLog(writer io.Writer, log []events.Event) error {
	if log == nil {
		log = []events.Event{}
	}
	encoder := json.NewEncoder(writer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(log)
}
