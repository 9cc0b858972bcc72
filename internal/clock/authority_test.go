package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	skew time.Duration
	err  error
}

func (f *fixedSource) ServerTime(ctx context.Context) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	return time.Now().Add(f.skew), nil
}

func TestAuthorityDegradedBeforeFirstSync(t *testing.T) {
	a := NewAuthority(&fixedSource{skew: time.Minute}, nil)

	assert.False(t, a.Synced())
	assert.Equal(t, time.Duration(0), a.Offset())
	// Falls back to the local clock with offset 0.
	assert.WithinDuration(t, time.Now(), a.Now(), time.Second)
}

func TestAuthoritySyncCorrectsSkew(t *testing.T) {
	// Local clock 120s ahead of the server means a -120s offset.
	src := &fixedSource{skew: -120 * time.Second}
	a := NewAuthority(src, nil)

	offset, err := a.Sync(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, float64(-120*time.Second), float64(offset), float64(time.Second))

	serverNow := time.Now().Add(src.skew)
	assert.WithinDuration(t, serverNow, a.Now(), time.Second)
	assert.True(t, a.Synced())
}

func TestAuthoritySyncFailureKeepsOffset(t *testing.T) {
	src := &fixedSource{skew: 30 * time.Second}
	a := NewAuthority(src, nil)

	_, err := a.Sync(context.Background())
	require.NoError(t, err)
	before := a.Offset()

	src.err = errors.New("unreachable")
	_, err = a.Sync(context.Background())
	assert.Error(t, err)
	assert.Equal(t, before, a.Offset())
	assert.True(t, a.Synced())
}

func TestAuthorityNilSource(t *testing.T) {
	a := NewAuthority(nil, nil)
	offset, err := a.Sync(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, time.Duration(0), offset)
	assert.WithinDuration(t, time.Now(), a.Now(), time.Second)
}
