package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ItemKind identifies the type of a telemetry item.
type ItemKind string

const (
	KindRemoteDependency ItemKind = "dependency"
	KindRequest          ItemKind = "request"
	KindTrace            ItemKind = "trace"
	KindEvent            ItemKind = "event"
)

// Item is a single immutable telemetry record flowing through the pipeline.
// Processors type-switch on the concrete value after checking Kind.
type Item interface {
	Kind() ItemKind
	ItemID() string
}

// RemoteDependency describes one outbound call made by the monitored process
// (HTTP, SQL, queue, ...).
type RemoteDependency struct {
	ID              string
	Name            string
	Duration        time.Duration
	Success         *bool // nil when the outcome is unknown
	Type            string
	Target          string
	ResultCode      string
	SyntheticSource string
	RoleName        string
	RoleInstance    string
	Timestamp       time.Time
}

func (d *RemoteDependency) Kind() ItemKind { return KindRemoteDependency }
func (d *RemoteDependency) ItemID() string { return d.ID }

// IsSynthetic reports whether the call was made by synthetic traffic
// (availability tests, bots).
func (d *RemoteDependency) IsSynthetic() bool {
	return d.SyntheticSource != ""
}

// DurationMs returns the call duration in fractional milliseconds.
func (d *RemoteDependency) DurationMs() float64 {
	return float64(d.Duration) / float64(time.Millisecond)
}

// Request is an incoming request record. It is never turned into dependency metrics.
type Request struct {
	ID           string
	Name         string
	Duration     time.Duration
	Success      *bool
	ResponseCode string
	RoleName     string
	RoleInstance string
	Timestamp    time.Time
}

func (r *Request) Kind() ItemKind { return KindRequest }
func (r *Request) ItemID() string { return r.ID }

// Trace is a log message record.
type Trace struct {
	ID        string
	Message   string
	Severity  string
	Timestamp time.Time
}

func (t *Trace) Kind() ItemKind { return KindTrace }
func (t *Trace) ItemID() string { return t.ID }

// Event is a custom named event.
type Event struct {
	ID        string
	Name      string
	Timestamp time.Time
}

func (e *Event) Kind() ItemKind { return KindEvent }
func (e *Event) ItemID() string { return e.ID }

// Bool returns a pointer to b. Handy for building records with a known outcome.
func Bool(b bool) *bool {
	return &b
}

// wireItem is the JSON-lines representation used by DecodeItem.
type wireItem struct {
	Kind            ItemKind  `json:"kind"`
	ID              string    `json:"id,omitempty"`
	Name            string    `json:"name,omitempty"`
	DurationMs      float64   `json:"duration_ms,omitempty"`
	Success         *bool     `json:"success,omitempty"`
	Type            string    `json:"type,omitempty"`
	Target          string    `json:"target,omitempty"`
	ResultCode      string    `json:"result_code,omitempty"`
	SyntheticSource string    `json:"synthetic_source,omitempty"`
	RoleName        string    `json:"role_name,omitempty"`
	RoleInstance    string    `json:"role_instance,omitempty"`
	Message         string    `json:"message,omitempty"`
	Severity        string    `json:"severity,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}

// DecodeItem parses one JSON document into a typed Item using the "kind"
// discriminator. Records without an id get a random UUID.
func DecodeItem(data []byte) (Item, error) {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode telemetry item: %v: %w", err, ErrMalformedItem)
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now().UTC()
	}
	if w.DurationMs < 0 {
		return nil, fmt.Errorf("negative duration %v: %w", w.DurationMs, ErrMalformedItem)
	}
	ns := w.DurationMs * float64(time.Millisecond)
	// float64(math.MaxInt64) is 2^63, the first value that does not fit.
	if ns >= float64(math.MaxInt64) {
		return nil, fmt.Errorf("duration %v ms out of range: %w", w.DurationMs, ErrMalformedItem)
	}
	duration := time.Duration(ns)

	switch w.Kind {
	case KindRemoteDependency:
		return &RemoteDependency{
			ID:              w.ID,
			Name:            w.Name,
			Duration:        duration,
			Success:         w.Success,
			Type:            w.Type,
			Target:          w.Target,
			ResultCode:      w.ResultCode,
			SyntheticSource: w.SyntheticSource,
			RoleName:        w.RoleName,
			RoleInstance:    w.RoleInstance,
			Timestamp:       w.Timestamp,
		}, nil
	case KindRequest:
		return &Request{
			ID:           w.ID,
			Name:         w.Name,
			Duration:     duration,
			Success:      w.Success,
			ResponseCode: w.ResultCode,
			RoleName:     w.RoleName,
			RoleInstance: w.RoleInstance,
			Timestamp:    w.Timestamp,
		}, nil
	case KindTrace:
		return &Trace{ID: w.ID, Message: w.Message, Severity: w.Severity, Timestamp: w.Timestamp}, nil
	case KindEvent:
		return &Event{ID: w.ID, Name: w.Name, Timestamp: w.Timestamp}, nil
	default:
		return nil, fmt.Errorf("kind %q: %w", w.Kind, ErrUnknownItemKind)
	}
}
