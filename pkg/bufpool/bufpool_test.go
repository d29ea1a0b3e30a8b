package bufpool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/tramp-rpc-server/pkg/bufpool"
)

func TestGet_ExactLength(t *testing.T) {
	for _, size := range []int{0, 1, 100, bufpool.SmallSize, bufpool.SmallSize + 1, bufpool.MediumSize, bufpool.LargeSize} {
		buf := bufpool.Get(size)
		assert.Len(t, buf, size)
		bufpool.Put(buf)
	}
}

func TestGet_Oversized(t *testing.T) {
	size := bufpool.LargeSize + 1
	buf := bufpool.Get(size)
	assert.Len(t, buf, size)
	assert.Equal(t, size, cap(buf), "oversized buffers are exact, unpooled allocations")
	bufpool.Put(buf) // must be a no-op, not a panic
}

func TestPut_Nil(t *testing.T) {
	assert.NotPanics(t, func() { bufpool.Put(nil) })
}

func TestReuse(t *testing.T) {
	p := bufpool.NewPool()
	buf := p.Get(100)
	buf[0] = 0xAA
	p.Put(buf)

	again := p.Get(50)
	assert.Len(t, again, 50)
	assert.Equal(t, bufpool.SmallSize, cap(again), "small class buffer backs both requests")
}

func TestGetUint32(t *testing.T) {
	buf := bufpool.GetUint32(256)
	assert.Len(t, buf, 256)
	bufpool.Put(buf)
}
