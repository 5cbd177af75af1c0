package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	require.NoError(t, apiError(200, []byte(`{"ok":true,"result":{"message_id":5}}`)))

	err := apiError(200, []byte(`{"ok":false,"description":"chat not found"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	err = apiError(429, []byte(`{"ok":false,"description":"Too Many Requests"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")

	err = apiError(502, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no description")
}

func TestSendTextRequiresCredentials(t *testing.T) {
	tg := &Telegram{}
	assert.Error(t, tg.SendText("hello"))
}
