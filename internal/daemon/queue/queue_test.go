package queue

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
)

func TestJoin(t *testing.T) {
	assert.Equal(t, "", join(nil, ","))
	assert.Equal(t, "a", join([]string{"a"}, ","))
	assert.Equal(t, "a,b,c", join([]string{"a", "b", "c"}, ","))
}

func TestNullBytes(t *testing.T) {
	assert.Nil(t, nullBytes(nil))
	assert.Equal(t, []byte("x"), nullBytes([]byte("x")))
}

func TestMarshalTimeouts(t *testing.T) {
	specs := []model.TimeoutSpec{
		{Measurement: "wall", Kind: "soft", Seconds: 30},
		{Measurement: "cpu", Kind: "hard", Seconds: 60},
	}
	b := MarshalTimeouts(specs)
	assert.Contains(t, string(b), `"measurement":"wall"`)
	assert.Contains(t, string(b), `"kind":"hard"`)
}

func TestIsLockNotAvailable(t *testing.T) {
	lockErr := &pq.Error{Code: "55P03"}
	assert.True(t, isLockNotAvailable(lockErr))

	otherErr := &pq.Error{Code: "23505"}
	assert.False(t, isLockNotAvailable(otherErr))

	assert.False(t, isLockNotAvailable(errors.New("generic")))
}
