package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientSelectsProvider(t *testing.T) {
	anthropic, err := NewClient(ProviderAnthropic, "sk-ant-test")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", anthropic.Name())

	oai, err := NewClient(ProviderOpenAI, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "openai", oai.Name())
}

func TestNewClientDefaultsToAnthropic(t *testing.T) {
	client, err := NewClient("", "sk-ant-test")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Name())
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(ProviderAnthropic, "")
	assert.Error(t, err)

	_, err = NewClient(ProviderOpenAI, "")
	assert.Error(t, err)
}
