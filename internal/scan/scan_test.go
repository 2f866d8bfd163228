package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_Email(t *testing.T) {
	res := Text("Contact jane.doe@example.com for details.")

	assert.False(t, res.OK)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, KindEmail, res.Findings[0].Kind)
	assert.Equal(t, "jane.doe@example.com", res.Findings[0].Snippet)
}

func TestText_SecretHint(t *testing.T) {
	tests := []string{
		"set the API_KEY before deploying",
		"rotate the password monthly",
		"the secret lives in vault",
		"pass a bearer token",
		"api-key=abc",
	}

	for _, tt := range tests {
		t.Run(tt, func(t *testing.T) {
			res := Text(tt)
			assert.False(t, res.OK)
			require.NotEmpty(t, res.Findings)
			assert.Equal(t, KindSecretHint, res.Findings[len(res.Findings)-1].Kind)
		})
	}
}

func TestText_Clean(t *testing.T) {
	res := Text("The launch announcement is ready for review.")

	assert.True(t, res.OK)
	assert.Empty(t, res.Findings)
}

func TestText_BothKinds(t *testing.T) {
	res := Text("email bob@corp.io the new api_key")

	assert.False(t, res.OK)
	assert.Len(t, res.Findings, 2)
}
