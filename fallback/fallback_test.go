package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsAtFirstSuccess(t *testing.T) {
	calls := []string{}
	attempts := []Attempt[string]{
		{Name: "primary", Run: func(ctx context.Context) (string, error) {
			calls = append(calls, "primary")
			return "", errors.New("down")
		}},
		{Name: "secondary", Run: func(ctx context.Context) (string, error) {
			calls = append(calls, "secondary")
			return "ok", nil
		}},
		{Name: "tertiary", Run: func(ctx context.Context) (string, error) {
			calls = append(calls, "tertiary")
			return "never", nil
		}},
	}

	out, err := Run(context.Background(), attempts, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)
	assert.Equal(t, "secondary", out.Winner)
	assert.Equal(t, 1, out.Index)
	assert.Equal(t, []string{"primary", "secondary"}, calls, "tertiary must not run after a success")
}

func TestRunExhaustionWrapsLastError(t *testing.T) {
	last := errors.New("scrape blocked")
	attempts := []Attempt[int]{
		{Name: "a", Run: func(ctx context.Context) (int, error) { return 0, errors.New("first") }},
		{Name: "b", Run: func(ctx context.Context) (int, error) { return 0, last }},
	}

	_, err := Run(context.Background(), attempts, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, last)
}

func TestRunObserverSeesEveryAttempt(t *testing.T) {
	type seen struct {
		name string
		ok   bool
	}
	var observed []seen

	attempts := []Attempt[string]{
		{Name: "one", Run: func(ctx context.Context) (string, error) { return "", errors.New("x") }},
		{Name: "two", Run: func(ctx context.Context) (string, error) { return "v", nil }},
	}

	_, err := Run(context.Background(), attempts, func(name string, index int, err error) {
		observed = append(observed, seen{name, err == nil})
	})
	require.NoError(t, err)
	assert.Equal(t, []seen{{"one", false}, {"two", true}}, observed)
}

func TestRunAtMostOneSuccess(t *testing.T) {
	succeeded := 0
	attempts := []Attempt[string]{
		{Name: "one", Run: func(ctx context.Context) (string, error) { return "a", nil }},
		{Name: "two", Run: func(ctx context.Context) (string, error) { return "b", nil }},
		{Name: "three", Run: func(ctx context.Context) (string, error) { return "c", nil }},
	}

	_, err := Run(context.Background(), attempts, func(name string, index int, err error) {
		if err == nil {
			succeeded++
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, succeeded)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := []Attempt[string]{
		{Name: "one", Run: func(ctx context.Context) (string, error) {
			t.Fatal("attempt should not run after cancellation")
			return "", nil
		}},
	}

	_, err := Run(ctx, attempts, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyChain(t *testing.T) {
	_, err := Run(context.Background(), []Attempt[string]{}, nil)
	assert.ErrorIs(t, err, ErrExhausted)
}
