package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the logging surface used across the package
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Clock is the source of the current time for token issuance and expiry
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// UserStore is the persistence collaborator. Lookups that find nothing
// return ErrUserNotFound.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetVerified(ctx context.Context, id string) error
	Exists(ctx context.Context, emailOrID string) (bool, error)
}

// Notifier delivers templated messages (password reset, email confirmation)
type Notifier interface {
	Send(ctx context.Context, template, recipient string, data map[string]any) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, template, recipient string, data map[string]any) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, template, recipient string, data map[string]any) error {
	return f(ctx, template, recipient, data)
}

// PasswordVerifier hashes and compares passwords
type PasswordVerifier interface {
	Hash(password string) (string, error)
	Compare(password, hash string) bool
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(formatLogLine("DBG", msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(formatLogLine("INF", msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(formatLogLine("WRN", msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(formatLogLine("ERR", msg, args))
}

// formatLogLine renders msg followed by args as key=value pairs. A trailing
// key without a value is reported under !BADKEY, the way slog does.
func formatLogLine(level, msg string, args []any) string {
	var b strings.Builder
	b.WriteString("[" + level + "] AUTH ")
	b.WriteString(strings.TrimRight(msg, "\n"))

	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			fmt.Fprintf(&b, " !BADKEY=%s", logValue(args[i]))
			break
		}
		fmt.Fprintf(&b, " %v=%s", args[i], logValue(args[i+1]))
	}
	return b.String()
}

func logValue(v any) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " =\"\n") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// ResolveLogger picks a named logger from the provider, falling back to
// the explicit logger and finally to the default stdout logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) Logger {
	if provider != nil {
		if l := provider.GetLogger(name); l != nil {
			return l
		}
	}
	if logger != nil {
		return logger
	}
	return defLogger{}
}
