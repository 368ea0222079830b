package core

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeItemDependency(t *testing.T) {
	item, err := DecodeItem([]byte(`{
		"kind": "dependency",
		"id": "abc",
		"duration_ms": 42.5,
		"success": true,
		"type": "SQL",
		"target": "db1",
		"synthetic_source": "availability-test",
		"role_name": "checkout",
		"role_instance": "checkout-0"
	}`))
	require.NoError(t, err)

	dep, ok := item.(*RemoteDependency)
	require.True(t, ok, "expected *RemoteDependency, got %T", item)
	assert.Equal(t, KindRemoteDependency, dep.Kind())
	assert.Equal(t, "abc", dep.ItemID())
	assert.Equal(t, 42500*time.Microsecond, dep.Duration)
	assert.InDelta(t, 42.5, dep.DurationMs(), 1e-9)
	require.NotNil(t, dep.Success)
	assert.True(t, *dep.Success)
	assert.Equal(t, "SQL", dep.Type)
	assert.Equal(t, "db1", dep.Target)
	assert.True(t, dep.IsSynthetic())
	assert.Equal(t, "checkout", dep.RoleName)
	assert.Equal(t, "checkout-0", dep.RoleInstance)
}

func TestDecodeItemAssignsID(t *testing.T) {
	item, err := DecodeItem([]byte(`{"kind":"trace","message":"hello"}`))
	require.NoError(t, err)

	_, err = uuid.Parse(item.ItemID())
	assert.NoError(t, err, "missing ids should be replaced with a UUID")
	assert.Equal(t, KindTrace, item.Kind())
}

func TestDecodeItemErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"not json", `{`, ErrMalformedItem},
		{"negative duration", `{"kind":"dependency","duration_ms":-1}`, ErrMalformedItem},
		{"duration overflows", `{"kind":"dependency","duration_ms":1e300}`, ErrMalformedItem},
		{"duration at int64 boundary", `{"kind":"dependency","duration_ms":9223372036854.775808}`, ErrMalformedItem},
		{"unknown kind", `{"kind":"metric"}`, ErrUnknownItemKind},
		{"missing kind", `{"id":"x"}`, ErrUnknownItemKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeItem([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestUnknownOutcome(t *testing.T) {
	item, err := DecodeItem([]byte(`{"kind":"dependency","type":"HTTP"}`))
	require.NoError(t, err)
	dep := item.(*RemoteDependency)
	assert.Nil(t, dep.Success)
	assert.False(t, dep.IsSynthetic())
}

func TestDecodeItemLargeDurationInRange(t *testing.T) {
	item, err := DecodeItem([]byte(`{"kind":"dependency","duration_ms":1e12}`))
	require.NoError(t, err)
	dep := item.(*RemoteDependency)
	assert.Positive(t, dep.Duration)
	assert.InDelta(t, 1e12, dep.DurationMs(), 1)
}
