package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wolfie/pkg/config"
)

type fakePurger struct {
	purged  int
	counted int
	err     error
	seen    time.Time
}

func (f *fakePurger) PurgeExpired(now time.Time) (int, error) {
	f.seen = now
	f.purged++
	return 3, f.err
}

func (f *fakePurger) CountExpired(now time.Time) (int, error) {
	f.seen = now
	f.counted++
	return 2, f.err
}

func TestRunOncePurges(t *testing.T) {
	p := &fakePurger{}
	rm := NewManager(config.RetentionConfig{Enabled: true, Cron: "* * * * *"}, p)
	fixed := time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC)
	rm.now = func() time.Time { return fixed }

	res, err := rm.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 3, res.Purged)
	assert.False(t, res.DryRun)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, fixed, p.seen)
	assert.Equal(t, 1, p.purged)
}

func TestRunOnceDryRunOnlyCounts(t *testing.T) {
	p := &fakePurger{}
	rm := NewManager(config.RetentionConfig{Enabled: true, DryRun: true}, p)
	res, err := rm.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Purged)
	assert.Equal(t, 0, p.purged)
	assert.Equal(t, 1, p.counted)
}

func TestRunOnceWrapsError(t *testing.T) {
	boom := errors.New("disk gone")
	rm := NewManager(config.RetentionConfig{}, &fakePurger{err: boom})
	_, err := rm.RunOnce()
	assert.ErrorIs(t, err, boom)
}

func TestStart(t *testing.T) {
	cancel, rm, err := Start(context.Background(), config.RetentionConfig{}, &fakePurger{})
	require.NoError(t, err)
	assert.Nil(t, rm)
	cancel()

	_, _, err = Start(context.Background(), config.RetentionConfig{Enabled: true, Cron: "nope"}, &fakePurger{})
	assert.Error(t, err)

	cancel, rm, err = Start(context.Background(), config.RetentionConfig{Enabled: true, Cron: "0 3 * * *"}, &fakePurger{})
	require.NoError(t, err)
	assert.NotNil(t, rm)
	cancel()
}
