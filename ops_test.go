package memcached

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArithmeticOp_Increment_defaultsToFailOnMiss(t *testing.T) {
	o := Increment([]byte("key"), 1)
	assert.Equal(t, uint32(0xFFFFFFFF), o.expires)
}

func TestArithmeticOp_Decrement_defaultsToFailOnMiss(t *testing.T) {
	o := Decrement([]byte("key"), 1)
	assert.Equal(t, uint32(0xFFFFFFFF), o.expires)
}

func TestArithmeticOp_InitialValue_switchesToSeedOnMiss(t *testing.T) {
	o := Increment([]byte("key"), 1).InitialValue(5)
	assert.Equal(t, uint64(5), o.initial)
	assert.Equal(t, uint32(0), o.expires)
}

func TestArithmeticOp_InitialValue_doesNotOverrideExplicitExpires(t *testing.T) {
	o := Increment([]byte("key"), 1).Expires(30).InitialValue(5)
	assert.Equal(t, uint32(30), o.expires)
}

func TestArithmeticOp_InitialValue_doesNotOverrideExplicitFailOnMiss(t *testing.T) {
	o := Increment([]byte("key"), 1).FailOnMiss().InitialValue(5)
	assert.Equal(t, uint32(0xFFFFFFFF), o.expires)
}

func TestArithmeticOp_FailOnMiss_afterInitialValueRestoresSentinel(t *testing.T) {
	o := Increment([]byte("key"), 1).InitialValue(5).FailOnMiss()
	assert.Equal(t, uint32(0xFFFFFFFF), o.expires)
}
