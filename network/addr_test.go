// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenAddr(t *testing.T) {
	addr, err := ListenAddr(":9000")
	require.NoError(t, err)
	assert.Equal(t, 9000, addr.Port)

	addr, err = ListenAddr("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, addr.Port)
	assert.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))
}

func TestHostIP(t *testing.T) {
	tests := []struct {
		in   string
		want net.IP
	}{
		{"127.0.0.1:5000", net.IPv4(127, 0, 0, 1)},
		{"[::1]:80", net.IPv6loopback},
		{"10.1.2.3", net.IPv4(10, 1, 2, 3)},
		{"bad", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := HostIP(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.True(t, tt.want.Equal(got), "%v", got)
		})
	}
}

func TestIsLocalhostIP(t *testing.T) {
	assert.True(t, IsLocalhostIP(net.IPv4(127, 0, 0, 1)))
	assert.True(t, IsLocalhostIP(net.IPv6loopback))
	assert.False(t, IsLocalhostIP(nil))
	assert.False(t, IsLocalhostIP(net.IPv4(8, 8, 8, 8)))
}
