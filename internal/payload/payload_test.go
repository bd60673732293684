package payload_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/payload"
)

func TestEncodeDecode_PreservesMessage(t *testing.T) {
	msg := &domain.Message{
		From:     "news@example.com",
		To:       []string{"a@example.com", "b@example.com"},
		Cc:       []string{"c@example.com"},
		ReplyTo:  []string{"editor@example.com"},
		Subject:  "Weekly digest – ünïcode",
		Body:     "plain body",
		HTMLBody: "<p>html body</p>",
		Headers:  map[string]string{"X-Campaign": "weekly"},
		Attachments: []domain.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xff}},
		},
	}

	data, err := payload.Encode(msg)
	require.NoError(t, err)

	got, err := payload.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestEncode_BlobCarriesSchema(t *testing.T) {
	data, err := payload.Encode(&domain.Message{To: []string{"a@example.com"}})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("Obj\x01")), "expected avro container magic")
	assert.Contains(t, string(data), "io.pigeonpost.outbox")
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := payload.Decode([]byte("not an avro container"))
	assert.Error(t, err)
}
