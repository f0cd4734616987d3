package nsqconn

import (
	"bytes"
	"encoding/json"
	"os"
	"time"
)

// IdentifyRequest is the feature-negotiation body carried by the IDENTIFY
// command. TLS and compression are advertised as unsupported.
type IdentifyRequest struct {
	ClientID            string `json:"client_id"`
	Hostname            string `json:"hostname"`
	FeatureNegotiation  bool   `json:"feature_negotiation"`
	HeartbeatInterval   int    `json:"heartbeat_interval"`
	OutputBufferSize    int    `json:"output_buffer_size"`
	OutputBufferTimeout int    `json:"output_buffer_timeout"`
	TLSv1               bool   `json:"tls_v1"`
	Snappy              bool   `json:"snappy"`
	Deflate             bool   `json:"deflate"`
	SampleRate          int32  `json:"sample_rate"`
	UserAgent           string `json:"user_agent"`
	MsgTimeout          int    `json:"msg_timeout"`
}

// IdentifyResponse is the broker's negotiated reply. MaxRdyCount and
// MsgTimeout override the client's configured defaults when present.
// AuthRequired fails the handshake; the AUTH exchange is not implemented.
type IdentifyResponse struct {
	MaxRdyCount  int64 `json:"max_rdy_count"`
	MsgTimeout   int64 `json:"msg_timeout"` // milliseconds
	TLSv1        bool  `json:"tls_v1"`
	Deflate      bool  `json:"deflate"`
	Snappy       bool  `json:"snappy"`
	AuthRequired bool  `json:"auth_required"`
}

// buildIdentifyRequest assembles the negotiation body from the connection
// options, resolving the local hostname lazily.
func buildIdentifyRequest(o *connOptions) *IdentifyRequest {
	hostname, _ := os.Hostname()

	clientID := o.clientID
	if clientID == "" {
		clientID = hostname
	}

	return &IdentifyRequest{
		ClientID:            clientID,
		Hostname:            hostname,
		FeatureNegotiation:  true,
		HeartbeatInterval:   int(o.heartbeatInterval / time.Millisecond),
		OutputBufferSize:    o.outputBufferSize,
		OutputBufferTimeout: int(o.outputBufferTimeout / time.Millisecond),
		TLSv1:               false,
		Snappy:              false,
		Deflate:             false,
		SampleRate:          o.sampleRate,
		UserAgent:           o.userAgent,
		MsgTimeout:          int(o.msgTimeout / time.Millisecond),
	}
}

// Encode serializes the request to its JSON wire body.
func (r *IdentifyRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// parseIdentifyResponse decodes the IDENTIFY reply payload. A broker that
// does not negotiate features answers with the bare "OK" literal, in which
// case all configured defaults stand.
func parseIdentifyResponse(body []byte) (*IdentifyResponse, error) {
	if bytes.Equal(body, ResponseOK) {
		return &IdentifyResponse{}, nil
	}

	resp := &IdentifyResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
