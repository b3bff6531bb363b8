package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/id"
)

func TestNewCarriesPrefix(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix id.Prefix
	}{
		{"usage event", id.NewUsageEventID, id.PrefixUsageEvent},
		{"tier change", id.NewTierChangeID, id.PrefixTierChange},
		{"audit", id.NewAuditID, id.PrefixAudit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn()
			assert.Equal(t, tt.prefix, got.Prefix())
			assert.True(t, strings.HasPrefix(got.String(), string(tt.prefix)+"_"))

			parsed, err := id.Parse(got.String(), tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, got.String(), parsed.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	_, err := id.Parse("")
	assert.Error(t, err)

	_, err = id.Parse("not an id")
	assert.Error(t, err)

	_, err = id.Parse(id.NewTierChangeID().String(), id.PrefixUsageEvent, id.PrefixAudit)
	assert.Error(t, err)
}

func TestNil(t *testing.T) {
	var i id.ID
	assert.True(t, i.IsNil())
	assert.Empty(t, i.String())
	assert.Empty(t, i.Prefix())
}

func TestJSONField(t *testing.T) {
	type record struct {
		ID id.UsageEventID `json:"id"`
	}

	in := record{ID: id.NewUsageEventID()}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out record
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.ID.String(), out.ID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"id":""}`), &out))
	assert.True(t, out.ID.IsNil())
}

func TestUnique(t *testing.T) {
	assert.NotEqual(t, id.NewUsageEventID().String(), id.NewUsageEventID().String())
}
