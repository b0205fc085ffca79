package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "database-first", want: DatabaseFirst},
		{in: "GitHub-First", want: GitHubFirst},
		{in: " database-only ", want: DatabaseOnly},
		{in: "github-only", want: GitHubOnly},
		{in: "cache-only", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownStrategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategy_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range Strategies() {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "Strategy(9)", Strategy(9).String())

	data, err := json.Marshal(map[string]Strategy{"s": GitHubOnly})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"github-only"}`, string(data))

	var decoded struct {
		S Strategy `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"database-only"}`), &decoded))
	assert.Equal(t, DatabaseOnly, decoded.S)
	require.Error(t, json.Unmarshal([]byte(`{"s":"nope"}`), &decoded))
}
