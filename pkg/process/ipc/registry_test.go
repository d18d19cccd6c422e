package ipc

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	m := newTestManager(t)
	r := NewRegistry(m)

	_, err := r.Create("")
	assert.ErrorIs(t, err, ErrInvalidName)

	p, err := r.Create("log")
	require.NoError(t, err)
	_, err = r.Create("log")
	assert.ErrorIs(t, err, ErrPipeExists)
	_, err = r.Create("ctl")
	require.NoError(t, err)

	assert.True(t, r.Exists("log"))
	assert.Equal(t, []string{"ctl", "log"}, r.List())

	opened, err := r.Open("log")
	require.NoError(t, err)
	assert.Same(t, p, opened)

	require.NoError(t, r.Remove("log"))
	assert.ErrorIs(t, r.Remove("log"), ErrPipeNotFound)
	_, err = r.Open("log")
	assert.ErrorIs(t, err, ErrPipeNotFound)
	assert.Equal(t, []string{"ctl"}, r.List())
}

func TestRegistryFIFOBetweenProcesses(t *testing.T) {
	m := newTestManager(t)
	r := NewRegistry(m)

	var got []byte
	spawn(t, m, "reader", func() {
		p, err := r.Open("fifo")
		for err != nil {
			m.Yield()
			p, err = r.Open("fifo")
		}
		buf := make([]byte, 8)
		for {
			n, err := p.Read(buf)
			got = append(got, buf[:n]...)
			if err == io.EOF {
				return
			}
		}
	})
	spawn(t, m, "writer", func() {
		p, err := r.Create("fifo")
		if err != nil {
			return
		}
		_, _ = p.Write([]byte("through the fifo"))
		_ = p.CloseWrite()
	})

	reapAll(t, m)
	assert.Equal(t, "through the fifo", string(got))
}
