package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Notification
	}{
		{
			name: "numeric ids",
			body: `{"id":12345,"live_mode":true,"type":"payment","date_created":"2025-01-01T00:00:00Z","action":"payment.created","data":{"id":999}}`,
			want: Notification{ID: "12345", Type: "payment", Action: "payment.created", DataID: "999"},
		},
		{
			name: "string ids",
			body: `{"id":"abc","type":"payment","data":{"id":"999"}}`,
			want: Notification{ID: "abc", Type: "payment", DataID: "999"},
		},
		{
			name: "legacy topic",
			body: `{"resource":"https://api/merchant_orders/1","topic":"merchant_order"}`,
			want: Notification{Type: "merchant_order"},
		},
		{
			name: "null fields",
			body: `{"id":null,"type":null,"data":null}`,
			want: Notification{Type: "unknown"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNotification([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNotification_Malformed(t *testing.T) {
	for _, body := range []string{`{"id":`, `[]`, `"payment"`} {
		_, err := ParseNotification([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestIsPayment(t *testing.T) {
	assert.True(t, Notification{Type: "payment"}.IsPayment())
	assert.True(t, Notification{Type: "payment.updated"}.IsPayment())
	assert.False(t, Notification{Type: "merchant_order"}.IsPayment())
	assert.False(t, Notification{Type: "unknown"}.IsPayment())
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":1}`)
	sig := Sign([]byte("s3cret"), body)

	assert.True(t, verifySignature([]byte("s3cret"), body, "ts=1,v1="+sig))
	assert.True(t, verifySignature([]byte("s3cret"), body, " v1="+sig+" , ts=1"))
	assert.False(t, verifySignature([]byte("s3cret"), []byte(`{"id":2}`), "ts=1,v1="+sig))
	assert.False(t, verifySignature([]byte("s3cret"), body, sig))
}
