package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeIntentLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFake()

	in, err := f.CreateIntent(ctx, CreateParams{AmountMinor: 6000, Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresPaymentMethod, in.Status)
	assert.NotEmpty(t, in.ClientSecret)

	_, err = f.CaptureIntent(ctx, in.ID)
	require.Error(t, err, "capture before confirmation must fail")

	require.NoError(t, f.Confirm(in.ID))
	got, err := f.RetrieveIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresCapture, got.Status)

	captured, err := f.CaptureIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, captured.Status)

	_, err = f.CancelIntent(ctx, in.ID)
	assert.Error(t, err, "succeeded intents cannot be voided")
}

func TestFakeFailNext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFake()
	boom := errors.New("network down")

	f.FailNext(OpCreate, boom)
	_, err := f.CreateIntent(ctx, CreateParams{AmountMinor: 100, Currency: "eur"})
	assert.ErrorIs(t, err, boom)

	_, err = f.CreateIntent(ctx, CreateParams{AmountMinor: 100, Currency: "eur"})
	assert.NoError(t, err)
	assert.Equal(t, 2, f.Calls(OpCreate))
}

func TestFakeUnknownIntent(t *testing.T) {
	t.Parallel()
	f := NewFake()

	_, err := f.RetrieveIntent(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, ErrIntentNotFound)
	assert.ErrorIs(t, f.Confirm("pi_missing"), ErrIntentNotFound)
}

func TestThrottledHonorsContext(t *testing.T) {
	t.Parallel()
	f := NewFake()
	g := NewThrottled(f, 0.001, 1)

	_, err := g.CreateIntent(context.Background(), CreateParams{AmountMinor: 100, Currency: "eur"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.RetrieveIntent(ctx, "pi_any")
	assert.Error(t, err)
	assert.Equal(t, 0, f.Calls(OpRetrieve))
}

func TestAwaitingCustomer(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusRequiresPaymentMethod.AwaitingCustomer())
	assert.True(t, StatusRequiresAction.AwaitingCustomer())
	assert.False(t, StatusRequiresCapture.AwaitingCustomer())
	assert.False(t, StatusCanceled.AwaitingCustomer())
}
