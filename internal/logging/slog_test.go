package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHost(t *testing.T) {
	tests := map[string]string{
		"":                                        "<empty>",
		"https://api.dev.example.com:6443":        "https://api.dev.example.com:6443",
		"https://172.18.0.2:6443":                 "https://<redacted-ip>:6443",
		"https://172.18.0.2:6443/api?timeout=32s": "https://<redacted-ip>:6443/api?timeout=32s",
		"172.18.0.2":                              "<redacted-ip>",
		"10.96.0.1:443":                           "<redacted-ip>:443",
		"https://[fd00:10:96::1]:443":             "https://<redacted-ip>:443",
		"fd00:10:96::1":                           "<redacted-ip>",
		"[fd00:10:96::a:1]:6443":                  "<redacted-ip>:6443",
		"2001:0db8:85a3:0000:0000:8a2e:0370:7334": "<redacted-ip>",
		"kind-control-plane":                      "kind-control-plane",
	}

	for host, want := range tests {
		t.Run(host, func(t *testing.T) {
			assert.Equal(t, want, SanitizeHost(host))
		})
	}
}

func TestAttributes(t *testing.T) {
	tests := []struct {
		attr    slog.Attr
		wantKey string
		want    string
	}{
		{Operation("items.list"), KeyOperation, "items.list"},
		{Context("kind-dev"), KeyContext, "kind-dev"},
		{Namespace("kube-system"), KeyNamespace, "kube-system"},
		{ResourceType("apps/deployments"), KeyResourceType, "apps/deployments"},
		{ResourceName("coredns"), KeyResourceName, "coredns"},
		{Node("kind-worker"), KeyNode, "kind-worker"},
		{Session("3f1c"), KeySession, "3f1c"},
		{Status(StatusError), KeyStatus, "error"},
		{Host("https://10.0.0.1:6443"), KeyHost, "https://<redacted-ip>:6443"},
		{Err(nil), KeyError, ""},
		{Err(errors.New("forbidden")), KeyError, "forbidden"},
		{SanitizedErr(nil), KeyError, ""},
		{
			SanitizedErr(errors.New(`Get "https://10.0.0.1:6443/api": dial tcp 10.0.0.1:6443: connect: connection refused`)),
			KeyError,
			`Get "https://<redacted-ip>:6443/api": dial tcp <redacted-ip>:6443: connect: connection refused`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.wantKey+"="+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.String())
		})
	}

	d := Duration(1500 * time.Millisecond)
	assert.Equal(t, KeyDuration, d.Key)
	assert.Equal(t, 1500*time.Millisecond, d.Value.Duration())
}

func TestScopedLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithContext(WithOperation(logger, "stats.refresh"), "prod").Info("refreshed")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "stats.refresh", record[KeyOperation])
	assert.Equal(t, "prod", record[KeyContext])
	assert.Equal(t, "refreshed", record[slog.MessageKey])
}
