package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurlHostForListenAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		":8080":           "localhost:8080",
		"0.0.0.0:9443":    "localhost:9443",
		"[::]:8080":       "localhost:8080",
		"[::1]:8080":      "[::1]:8080",
		"127.0.0.1:8080":  "127.0.0.1:8080",
		"gov.internal:80": "gov.internal:80",
		"  :7070  ":       "localhost:7070",
		"":                "localhost:8080",
		"   ":             "localhost:8080",
		"no-port-given":   "no-port-given",
	}

	for listenAddr, want := range cases {
		t.Run(listenAddr, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, curlHostForListenAddr(listenAddr))
		})
	}
}
