package unitmodel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("Error returns formatted message", func(t *testing.T) {
		cause := errors.New("no such file")
		err := NewError(KindSpawnError, "web", cause)

		assert.Equal(t, `SpawnError: unit "web": no such file`, err.Error())
	})

	t.Run("Unwrap returns underlying cause", func(t *testing.T) {
		cause := errors.New("no such file")
		err := NewError(KindSpawnError, "web", cause)

		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("Is predicates classify by kind", func(t *testing.T) {
		err := NewError(KindHookFailed, "web", errors.New("exit status 1"))

		assert.True(t, IsHookFailed(err))
		assert.False(t, IsSpawnError(err))
	})

	t.Run("Is predicates see through wrapping", func(t *testing.T) {
		err := fmt.Errorf("registering units: %w", NewError(KindConfigError, "web", errors.New("cycle detected")))
		assert.True(t, IsConfigError(err))
		assert.False(t, IsHookFailed(err))
	})
}

func TestErrorKindString(t *testing.T) {
	cases := []struct {
		k    ErrorKind
		want string
	}{
		{KindConfigError, "ConfigError"},
		{KindSpawnError, "SpawnError"},
		{KindHookFailed, "HookFailed"},
		{KindNotificationTimeout, "NotificationTimeout"},
		{KindSocketOpenError, "SocketOpenError"},
		{KindReapError, "ReapError"},
		{KindShutdownError, "ShutdownError"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.k.String())
	}
}
