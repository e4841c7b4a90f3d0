// Package events defines the messages pushed to connected observers and the
// topics they are routed on.
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vrsandeep/tunedl/internal/models"
)

// Type is the "type" field of an envelope.
type Type string

const (
	TypeQueueUpdated     Type = "queue_updated"
	TypeSongsUpdated     Type = "songs_updated"
	TypeUsersUpdated     Type = "users_updated"
	TypeDashboardUpdated Type = "dashboard_updated"
	TypeLogsUpdated      Type = "logs_updated"
	TypePong             Type = "pong"
	TypeDownloadProgress Type = "download_progress"
	TypeDownloadComplete Type = "download_complete"
	TypeDownloadError    Type = "download_error"
)

// Global topics are shared by every connection authorized for them.
const (
	TopicUsers     = "users_updated"
	TopicLogs      = "logs_updated"
	TopicDashboard = "dashboard_updated"
)

const ownerTopicPrefix = "owner:"

// OwnerTopic returns the routing key for events that belong to one owner.
func OwnerTopic(ownerID string) string {
	return ownerTopicPrefix + ownerID
}

// OwnerFromTopic is the inverse of OwnerTopic.
func OwnerFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, ownerTopicPrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, ownerTopicPrefix), true
}

func IsGlobal(topic string) bool {
	switch topic {
	case TopicUsers, TopicLogs, TopicDashboard:
		return true
	}
	return false
}

// Publisher is anything events can be handed to for delivery.
type Publisher interface {
	Publish(topic string, ev Event)
}

// Envelope is the wire form of every server-to-client message.
type Envelope struct {
	Type            Type            `json:"type"`
	UserID          string          `json:"userId,omitempty"`
	URL             string          `json:"url,omitempty"`
	Status          string          `json:"status,omitempty"`
	Title           string          `json:"title,omitempty"`
	Artist          string          `json:"artist,omitempty"`
	ID              string          `json:"id,omitempty"`
	Percentage      *float64        `json:"percentage,omitempty"`
	DownloadedBytes *int64          `json:"downloaded_bytes,omitempty"`
	TotalBytes      *int64          `json:"total_bytes,omitempty"`
	Error           string          `json:"error,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
}

// Event is the closed set of messages the server can emit.
type Event interface {
	Type() Type
	Envelope() Envelope
	sealed()
}

type QueueUpdated struct{ UserID string }
type SongsUpdated struct{ UserID string }
type UsersUpdated struct{}
type DashboardUpdated struct{}
type LogsUpdated struct{}
type Pong struct{}

// DownloadProgress carries the full current record of one item.
type DownloadProgress struct {
	Record models.ProgressRecord
}

type DownloadComplete struct {
	UserID string
	Result models.BatchResult
}

// DownloadError reports a batch-level failure. Per-item failures travel as
// DownloadProgress with status "error".
type DownloadError struct {
	UserID string
	Error  string
}

func (QueueUpdated) Type() Type     { return TypeQueueUpdated }
func (SongsUpdated) Type() Type     { return TypeSongsUpdated }
func (UsersUpdated) Type() Type     { return TypeUsersUpdated }
func (DashboardUpdated) Type() Type { return TypeDashboardUpdated }
func (LogsUpdated) Type() Type      { return TypeLogsUpdated }
func (Pong) Type() Type             { return TypePong }
func (DownloadProgress) Type() Type { return TypeDownloadProgress }
func (DownloadComplete) Type() Type { return TypeDownloadComplete }
func (DownloadError) Type() Type    { return TypeDownloadError }

func (QueueUpdated) sealed()     {}
func (SongsUpdated) sealed()     {}
func (UsersUpdated) sealed()     {}
func (DashboardUpdated) sealed() {}
func (LogsUpdated) sealed()      {}
func (Pong) sealed()             {}
func (DownloadProgress) sealed() {}
func (DownloadComplete) sealed() {}
func (DownloadError) sealed()    {}

func (e QueueUpdated) Envelope() Envelope { return Envelope{Type: e.Type(), UserID: e.UserID} }
func (e SongsUpdated) Envelope() Envelope { return Envelope{Type: e.Type(), UserID: e.UserID} }
func (e UsersUpdated) Envelope() Envelope { return Envelope{Type: e.Type()} }
func (e DashboardUpdated) Envelope() Envelope {
	return Envelope{Type: e.Type()}
}
func (e LogsUpdated) Envelope() Envelope { return Envelope{Type: e.Type()} }
func (e Pong) Envelope() Envelope        { return Envelope{Type: e.Type()} }

func (e DownloadProgress) Envelope() Envelope {
	r := e.Record
	pct, dl, total := r.Percentage, r.DownloadedBytes, r.TotalBytes
	return Envelope{
		Type:            e.Type(),
		UserID:          r.OwnerID,
		URL:             r.URL,
		Status:          string(r.Status),
		Title:           r.Title,
		Artist:          r.Artist,
		ID:              r.ExternalID,
		Percentage:      &pct,
		DownloadedBytes: &dl,
		TotalBytes:      &total,
		Error:           r.ErrorMessage,
	}
}

func (e DownloadComplete) Envelope() Envelope {
	// BatchResult only holds plain values; Marshal cannot fail here.
	raw, _ := json.Marshal(e.Result)
	return Envelope{Type: e.Type(), UserID: e.UserID, Result: raw}
}

func (e DownloadError) Envelope() Envelope {
	return Envelope{Type: e.Type(), UserID: e.UserID, Error: e.Error}
}

// Encode renders ev as the JSON envelope sent on the wire.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev.Envelope())
}

// Decode parses an envelope and returns the matching variant.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return FromEnvelope(env)
}

func FromEnvelope(env Envelope) (Event, error) {
	switch env.Type {
	case TypeQueueUpdated:
		return QueueUpdated{UserID: env.UserID}, nil
	case TypeSongsUpdated:
		return SongsUpdated{UserID: env.UserID}, nil
	case TypeUsersUpdated:
		return UsersUpdated{}, nil
	case TypeDashboardUpdated:
		return DashboardUpdated{}, nil
	case TypeLogsUpdated:
		return LogsUpdated{}, nil
	case TypePong:
		return Pong{}, nil
	case TypeDownloadProgress:
		rec := models.ProgressRecord{
			OwnerID:      env.UserID,
			URL:          env.URL,
			Status:       models.Status(env.Status),
			Title:        env.Title,
			Artist:       env.Artist,
			ExternalID:   env.ID,
			ErrorMessage: env.Error,
		}
		if env.Percentage != nil {
			rec.Percentage = *env.Percentage
		}
		if env.DownloadedBytes != nil {
			rec.DownloadedBytes = *env.DownloadedBytes
		}
		if env.TotalBytes != nil {
			rec.TotalBytes = *env.TotalBytes
		}
		return DownloadProgress{Record: rec}, nil
	case TypeDownloadComplete:
		var res models.BatchResult
		if len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, &res); err != nil {
				return nil, fmt.Errorf("decode batch result: %w", err)
			}
		}
		return DownloadComplete{UserID: env.UserID, Result: res}, nil
	case TypeDownloadError:
		return DownloadError{UserID: env.UserID, Error: env.Error}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", env.Type)
}
