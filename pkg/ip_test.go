package pkg

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUserIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		expected   string
		expectErr  bool
	}{
		{name: "RemoteAddrWithPort", remoteAddr: "83.12.53.65:2145", expected: "83.12.53.65"},
		{name: "RealIPHeader", remoteAddr: "10.0.0.1:80", realIP: "111.12.56.65", expected: "111.12.56.65"},
		{name: "ForwardedChain", remoteAddr: "10.0.0.1:80", forwarded: "172.19.0.1, 10.0.0.2", expected: "172.19.0.1"},
		{name: "IPv6", remoteAddr: "[::1]:8080", expected: "::1"},
		{name: "Garbage", remoteAddr: "not-an-ip", expectErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			req.RemoteAddr = tc.remoteAddr
			if tc.realIP != "" {
				req.Header.Set("X-Real-Ip", tc.realIP)
			}
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}

			ip, err := ReadUserIP(req)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ip)
		})
	}
}
