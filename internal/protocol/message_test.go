package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Message
		wantErr error
	}{
		{name: "get", input: "get k1", want: Get{Key: "k1"}},
		{name: "put", input: "put k1 v1", want: Put{Key: "k1", Value: "v1"}},
		{name: "ping", input: "ping", want: Ping{}},
		{name: "join", input: "join 127.0.0.1 5001", want: Join{Host: "127.0.0.1", Port: 5001}},
		{name: "get_all", input: "get_all", want: GetAll{}},
		{name: "extra whitespace", input: "  put   k1 \t v1 \n", want: Put{Key: "k1", Value: "v1"}},
		{name: "empty", input: "", wantErr: ErrMalformed},
		{name: "unknown", input: "delete k1", wantErr: ErrUnknownCommand},
		{name: "get without key", input: "get", wantErr: ErrMalformed},
		{name: "put without value", input: "put k1", wantErr: ErrMalformed},
		{name: "put with spaces in value", input: "put k1 v 1", wantErr: ErrMalformed},
		{name: "ping with args", input: "ping now", wantErr: ErrMalformed},
		{name: "join bad port", input: "join localhost http", wantErr: ErrMalformed},
		{name: "join port out of range", input: "join localhost 70000", wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unmarshal([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshal(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Get{Key: "k1"}, "get k1"},
		{Put{Key: "k1", Value: "v1"}, "put k1 v1"},
		{Ping{}, "ping"},
		{Join{Host: "localhost", Port: 5000}, "join localhost 5000"},
		{GetAll{}, "get_all"},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Command(), func(t *testing.T) {
			payload, err := Marshal(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(payload))

			decoded, err := Unmarshal(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestMarshal_RejectsUnrepresentableTokens(t *testing.T) {
	_, err := Marshal(Put{Key: "k1", Value: "two words"})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Marshal(Get{Key: ""})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMarshal_UnicodeSpace(t *testing.T) {
	for _, value := range []string{"a\u00a0b", "a\u0085b", "a\u2003b", "a\u3000b"} {
		_, err := Marshal(Put{Key: "k", Value: value})
		assert.ErrorIs(t, err, ErrMalformed, "%q", value)
		assert.False(t, ValidToken(value), "%q", value)
	}
}

func TestMarshal_AcceptedTokensRoundTrip(t *testing.T) {
	for _, value := range []string{"plain", "café", "日本語", "a\u200bb", "x=1;y=2"} {
		require.True(t, ValidToken(value), "%q", value)

		payload, err := Marshal(Put{Key: "k", Value: value})
		require.NoError(t, err)

		decoded, err := Unmarshal(payload)
		require.NoError(t, err)
		assert.Equal(t, Put{Key: "k", Value: value}, decoded)
	}
}

func TestJoin_Addr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:5000", Join{Host: "127.0.0.1", Port: 5000}.Addr())
	assert.Equal(t, "[::1]:5000", Join{Host: "::1", Port: 5000}.Addr())
}
