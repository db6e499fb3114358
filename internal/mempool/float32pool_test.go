package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeClassBuckets(t *testing.T) {
	assert.Equal(t, 1024, sizeClass(1))
	assert.Equal(t, 1024, sizeClass(1024))
	assert.Equal(t, 2048, sizeClass(1025))
	assert.Equal(t, 4096, sizeClass(3*1024+1))
}

func TestGetPutRoundTrip(t *testing.T) {
	buf := GetFloat32(100)
	assert.Len(t, buf, 100)
	assert.GreaterOrEqual(t, cap(buf), 1024)

	buf[0] = 42
	PutFloat32(buf)

	again := GetFloat32(50)
	assert.Len(t, again, 50)
	PutFloat32(again)
}

func TestPutNilIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { PutFloat32(nil) })
}
