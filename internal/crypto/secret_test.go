package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 2*SecretBytes)
	assert.NotEqual(t, a, b)
}

func TestSecretsEqual(t *testing.T) {
	s, err := GenerateSecret()
	require.NoError(t, err)

	assert.True(t, SecretsEqual(s, s))
	assert.False(t, SecretsEqual(strings.ToUpper(s), s), "case must matter")
	assert.False(t, SecretsEqual(s[:10], s), "prefix is not a match")
	assert.False(t, SecretsEqual(s+" ", s))
	assert.False(t, SecretsEqual("", s))
	// пустой сохранённый секрет (стёртый) никогда не совпадает
	assert.False(t, SecretsEqual("", ""))
}
