package dockerlocal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStack(t *testing.T) {
	data := []byte(`
services:
  app:
    image: nginx:1.27
    ports: ["8080:80"]
    environment:
      APP_ENV: staging
  worker:
    image: busybox:1.36
    command: ["sleep", "infinity"]
    restart: unless-stopped
outputs:
  app_url:
    value: http://localhost:8080
  admin_token:
    sensitive: true
`)
	stack, err := ParseStack(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "worker"}, stack.ServiceNames())
	assert.Equal(t, "nginx:1.27", stack.Services["app"].Image)
	assert.Equal(t, "staging", stack.Services["app"].Environment["APP_ENV"])
	assert.Equal(t, []string{"sleep", "infinity"}, stack.Services["worker"].Command)

	assert.Len(t, stack.Outputs, 2)
	assert.True(t, stack.Outputs["admin_token"].Sensitive)
}

func TestParseStack_NoServices(t *testing.T) {
	_, err := ParseStack([]byte(`outputs: {}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no services")
}

func TestParseStack_MissingImage(t *testing.T) {
	_, err := ParseStack([]byte("services:\n  app: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `service "app": image is required`)
}

func TestParseStack_BadPort(t *testing.T) {
	_, err := ParseStack([]byte("services:\n  app:\n    image: nginx\n    ports: [\"eighty\"]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid port "eighty"`)
}

func TestParsePort(t *testing.T) {
	host, cont, err := parsePort("8080:80")
	require.NoError(t, err)
	assert.Equal(t, 8080, host)
	assert.Equal(t, 80, cont)

	host, cont, err = parsePort("5432")
	require.NoError(t, err)
	assert.Equal(t, 0, host)
	assert.Equal(t, 5432, cont)

	_, _, err = parsePort("1:2:3")
	assert.Error(t, err)
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "tz-shop-staging-app", ContainerName("shop", "staging", "app"))
	assert.Equal(t, "tz-shop-staging", NetworkName("shop", "staging"))
}
