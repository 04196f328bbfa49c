package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("123456")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	assert.True(t, Verify("123456", hash))
	assert.False(t, Verify("654321", hash))
	assert.False(t, NeedsRehash(hash))

	again, err := Hash("123456")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salt must differ")
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, Verify("secret-pass", string(legacy)))
	assert.False(t, Verify("other", string(legacy)))
	assert.True(t, NeedsRehash(string(legacy)))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	assert.False(t, Verify("x", ""))
	assert.False(t, Verify("x", "plaintext"))
	assert.False(t, Verify("x", "$argon2id$v=19$m=1,t=1$abc$def"))
	assert.True(t, NeedsRehash("$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$a2V5"))
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9')
		}
	}

	_, err := GenerateCode(0)
	assert.Error(t, err)
}
