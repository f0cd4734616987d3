package nsqconn

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandEncode(t *testing.T) {
	t.Run("bare command", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := Nop().Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, "NOP\n", buf.String())
		assert.Equal(t, buf.Len(), n)
	})

	t.Run("command with params", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Subscribe("events", "archive").Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, "SUB events archive\n", buf.String())
	})

	t.Run("command with body", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Publish("events", []byte("hello")).Encode(&buf)
		require.NoError(t, err)

		raw := buf.Bytes()
		assert.Equal(t, "PUB events\n", string(raw[:11]))
		assert.Equal(t, uint32(5), binary.BigEndian.Uint32(raw[11:15]))
		assert.Equal(t, "hello", string(raw[15:]))
	})

	t.Run("identify carries length-prefixed body", func(t *testing.T) {
		var buf bytes.Buffer
		body := []byte(`{"client_id":"x"}`)
		_, err := Identify(body).Encode(&buf)
		require.NoError(t, err)

		raw := buf.Bytes()
		assert.Equal(t, "IDENTIFY\n", string(raw[:9]))
		assert.Equal(t, uint32(len(body)), binary.BigEndian.Uint32(raw[9:13]))
		assert.Equal(t, body, raw[13:])
	})

	t.Run("empty name is invalid", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := (&Command{}).Encode(&buf)
		assert.ErrorIs(t, err, ErrInvalidCommand)
	})
}

func TestCommandConstructors(t *testing.T) {
	id := MessageID{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}

	t.Run("ready", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Ready(2500).Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, "RDY 2500\n", buf.String())
	})

	t.Run("finish", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Finish(id).Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, "FIN 0123456789abcdef\n", buf.String())
	})

	t.Run("requeue delay in milliseconds", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Requeue(id, 90*time.Second).Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, "REQ 0123456789abcdef 90000\n", buf.String())
	})

	t.Run("touch", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := Touch(id).Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, "TOUCH 0123456789abcdef\n", buf.String())
	})

	t.Run("close", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := StartClose().Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, "CLS\n", buf.String())
	})

	t.Run("multi publish", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := MultiPublish("events", [][]byte{[]byte("one"), []byte("four")}).Encode(&buf)
		require.NoError(t, err)

		raw := buf.Bytes()
		assert.Equal(t, "MPUB events\n", string(raw[:12]))
		// Body size: count + (len prefix + body) per message.
		assert.Equal(t, uint32(4+4+3+4+4), binary.BigEndian.Uint32(raw[12:16]))
		assert.Equal(t, uint32(2), binary.BigEndian.Uint32(raw[16:20]))
		assert.Equal(t, uint32(3), binary.BigEndian.Uint32(raw[20:24]))
		assert.Equal(t, "one", string(raw[24:27]))
		assert.Equal(t, uint32(4), binary.BigEndian.Uint32(raw[27:31]))
		assert.Equal(t, "four", string(raw[31:]))
	})
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "SUB events archive", Subscribe("events", "archive").String())
	assert.Equal(t, "NOP", Nop().String())
}
