package nsqconn

import (
	"context"
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQUICDialer(t *testing.T) {
	t.Run("dial context cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		d := NewQUICDialer(nil)
		_, err := d.Dial(ctx, "127.0.0.1:1")
		assert.Error(t, err)
	})

	t.Run("default TLS configuration", func(t *testing.T) {
		d := NewQUICDialer(nil)
		require.NotNil(t, d.TLSConfig)
		assert.Equal(t, uint16(tls.VersionTLS13), d.TLSConfig.MinVersion)
		assert.Equal(t, []string{"nsq"}, d.TLSConfig.NextProtos)
	})

	t.Run("caller config preserved", func(t *testing.T) {
		cfg := &tls.Config{ServerName: "broker.internal", NextProtos: []string{"nsq"}}
		d := NewQUICDialer(cfg)
		assert.Same(t, cfg, d.TLSConfig)
	})
}
