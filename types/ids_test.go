package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()

	require.False(t, id.IsZero())
	require.NoError(t, id.Validate())

	// Two generated IDs must differ.
	other := NewID()
	assert.NotEqual(t, id, other)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid UUID",
			input:   "550e8400-e29b-41d4-a716-446655440000",
			wantErr: false,
		},
		{
			name:    "valid uppercase UUID is canonicalized",
			input:   "550E8400-E29B-41D4-A716-446655440000",
			wantErr: false,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "not a UUID",
			input:   "not-a-uuid",
			wantErr: true,
		},
		{
			name:    "truncated UUID",
			input:   "550e8400-e29b-41d4",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id.String())
		})
	}
}

func TestID_Short(t *testing.T) {
	id := ID("550e8400-e29b-41d4-a716-446655440000")
	assert.Equal(t, "550e8400", id.Short())

	assert.Equal(t, "abc", ID("abc").Short())
	assert.Equal(t, "", ID("").Short())
}

func TestID_JSONRoundTrip(t *testing.T) {
	id := NewID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)
}

func TestID_MarshalJSONZero(t *testing.T) {
	var id ID

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{
			name:  "valid UUID string",
			input: `"550e8400-e29b-41d4-a716-446655440000"`,
			want:  ID("550e8400-e29b-41d4-a716-446655440000"),
		},
		{
			name:  "null produces zero ID",
			input: `null`,
			want:  ID(""),
		},
		{
			name:  "empty string produces zero ID",
			input: `""`,
			want:  ID(""),
		},
		{
			name:    "invalid UUID",
			input:   `"nope"`,
			wantErr: true,
		},
		{
			name:    "wrong JSON type",
			input:   `42`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}
