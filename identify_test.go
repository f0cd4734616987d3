package nsqconn

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIdentifyRequest(t *testing.T) {
	opts := applyOptions(
		WithClientID("worker-1"),
		WithUserAgent("test-agent/1.0"),
		WithHeartbeatInterval(15*time.Second),
		WithOutputBuffering(4096, 100*time.Millisecond),
		WithMsgTimeout(45*time.Second),
		WithSampleRate(25),
	)

	req := buildIdentifyRequest(opts)
	assert.Equal(t, "worker-1", req.ClientID)
	assert.NotEmpty(t, req.Hostname)
	assert.True(t, req.FeatureNegotiation)
	assert.Equal(t, 15000, req.HeartbeatInterval)
	assert.Equal(t, 4096, req.OutputBufferSize)
	assert.Equal(t, 100, req.OutputBufferTimeout)
	assert.Equal(t, 45000, req.MsgTimeout)
	assert.Equal(t, int32(25), req.SampleRate)
	assert.False(t, req.TLSv1)
	assert.False(t, req.Snappy)
	assert.False(t, req.Deflate)

	body, err := req.Encode()
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(body, &fields))
	assert.Equal(t, "test-agent/1.0", fields["user_agent"])
	assert.Contains(t, fields, "feature_negotiation")
	assert.Contains(t, fields, "tls_v1")
}

func TestBuildIdentifyRequestDefaultsClientIDToHostname(t *testing.T) {
	req := buildIdentifyRequest(applyOptions())
	assert.Equal(t, req.Hostname, req.ClientID)
}

func TestParseIdentifyResponse(t *testing.T) {
	t.Run("negotiated overrides", func(t *testing.T) {
		resp, err := parseIdentifyResponse([]byte(`{"max_rdy_count":2500,"msg_timeout":90000}`))
		require.NoError(t, err)
		assert.Equal(t, int64(2500), resp.MaxRdyCount)
		assert.Equal(t, int64(90000), resp.MsgTimeout)
	})

	t.Run("bare OK means no negotiation", func(t *testing.T) {
		resp, err := parseIdentifyResponse([]byte("OK"))
		require.NoError(t, err)
		assert.Zero(t, resp.MaxRdyCount)
		assert.Zero(t, resp.MsgTimeout)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := parseIdentifyResponse([]byte("{not json"))
		assert.Error(t, err)
	})
}
