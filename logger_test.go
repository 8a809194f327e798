package auth_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	auth "github.com/goliatone/go-scoped-auth"
)

func TestFormatLogLine(t *testing.T) {
	tests := []struct {
		name  string
		level string
		msg   string
		args  []any
		want  string
	}{
		{
			name:  "message only",
			level: "INF",
			msg:   "server started",
			want:  "[INF] AUTH server started",
		},
		{
			name:  "key value pairs",
			level: "DBG",
			msg:   "token verification failed",
			args:  []any{"scope", "login/users", "attempt", 2},
			want:  "[DBG] AUTH token verification failed scope=login/users attempt=2",
		},
		{
			name:  "values with spaces are quoted",
			level: "ERR",
			msg:   "register user error",
			args:  []any{"email", "ada@example.com", "error", errors.New("user already exists")},
			want:  `[ERR] AUTH register user error email=ada@example.com error="user already exists"`,
		},
		{
			name:  "dangling key",
			level: "WRN",
			msg:   "activity sink record error",
			args:  []any{"event", "login", "orphan"},
			want:  "[WRN] AUTH activity sink record error event=login !BADKEY=orphan",
		},
		{
			name:  "empty value",
			level: "INF",
			msg:   "mail sent\n",
			args:  []any{"template", ""},
			want:  `[INF] AUTH mail sent template=""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.FormatLogLine(tt.level, tt.msg, tt.args))
		})
	}
}
