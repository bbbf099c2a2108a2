package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	fast := Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}
	phc, err := Hash(fast, "correct horse")
	require.NoError(t, err)

	require.True(t, Verify("correct horse", phc))
	require.False(t, Verify("wrong horse", phc))
	require.False(t, Verify("correct horse", "$argon2id$v=19$garbage"))

	_, err = Hash(fast, "")
	require.ErrorIs(t, err, ErrEmptyPassword)
}
