// Package activitymap turns auth activity events into a flat record shape
// for audit logs and downstream consumers.
package activitymap

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	auth "github.com/goliatone/go-scoped-auth"
)

// MetadataKeySubject stores the token subject (email) of the event
const MetadataKeySubject = "subject"

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	redactSubject bool
}

// Normalize converts an auth.ActivityEvent into a Normalized record.
// Failed logins for unknown emails have no user id; the actor falls back
// to the configured default.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	userID := strings.TrimSpace(event.UserID)
	actorID := userID
	if actorID == "" {
		actorID = options.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   userID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event, options.redactSubject),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event has no user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithRedactedSubject masks the local part of the subject email
func WithRedactedSubject() Option {
	return func(opts *normalizeOptions) {
		opts.redactSubject = true
	}
}

// LogSink is an auth.ActivitySink that logs every normalized event
type LogSink struct {
	logger auth.Logger
	opts   []Option
}

var _ auth.ActivitySink = (*LogSink)(nil)

func NewLogSink(logger auth.Logger, opts ...Option) *LogSink {
	return &LogSink{
		logger: auth.ResolveLogger("activity", nil, logger),
		opts:   opts,
	}
}

// Record implements auth.ActivitySink
func (s *LogSink) Record(_ context.Context, event auth.ActivityEvent) error {
	n := Normalize(event, s.opts...)
	s.logger.Info("activity",
		"verb", n.Verb,
		"actor_id", n.ActorID,
		"object_type", n.ObjectType,
		"object_id", n.ObjectID,
		"channel", n.Channel,
		"metadata", n.Metadata,
		"occurred_at", n.OccurredAt,
	)
	return nil
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func normalizeMetadata(event auth.ActivityEvent, redact bool) map[string]any {
	metadata := cloneMap(event.Metadata)

	if subject := strings.TrimSpace(event.Subject); subject != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if redact {
			subject = redactEmail(subject)
		}
		metadata[MetadataKeySubject] = subject
	}

	return metadata
}

func redactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	_, size := utf8.DecodeRuneInString(email)
	return email[:size] + "***" + email[at:]
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
