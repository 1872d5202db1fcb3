package reporter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-profiler/internal/model"
)

type mockReporter struct {
	mu        sync.Mutex
	setups    int
	refreshes int
	reports   []*model.Profile
	err       error
}

func (m *mockReporter) Setup(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setups++
	return m.err
}

func (m *mockReporter) RefreshConfiguration(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return m.err
}

func (m *mockReporter) Report(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, p)
	return m.err
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &mockReporter{}, &mockReporter{}
	multi := NewMulti(a, b)
	ctx := context.Background()
	p := &model.Profile{}

	require.NoError(t, multi.Setup(ctx))
	require.NoError(t, multi.RefreshConfiguration(ctx))
	require.NoError(t, multi.Report(ctx, p))

	for _, r := range []*mockReporter{a, b} {
		assert.Equal(t, 1, r.setups)
		assert.Equal(t, 1, r.refreshes)
		require.Len(t, r.reports, 1)
		assert.Same(t, p, r.reports[0])
	}
	assert.Equal(t, 2, multi.Len())
}

func TestMulti_FailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	failing, ok := &mockReporter{err: boom}, &mockReporter{}
	multi := NewMulti(failing, ok)

	err := multi.Report(context.Background(), &model.Profile{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "reporter 0 failed to report")
	assert.Len(t, ok.reports, 1)
}

func TestMulti_JoinsEveryFailureInReporterOrder(t *testing.T) {
	diskFull, dbLocked := errors.New("disk full"), errors.New("database locked")
	multi := NewMulti(&mockReporter{err: diskFull}, &mockReporter{}, &mockReporter{err: dbLocked})

	err := multi.Setup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
	assert.ErrorIs(t, err, dbLocked)
	assert.Equal(t,
		"reporter 0 failed to setup: disk full\nreporter 2 failed to setup: database locked",
		err.Error())
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, NewMulti().Report(context.Background(), &model.Profile{}))
	assert.NoError(t, Nop{}.Report(context.Background(), nil))
}
