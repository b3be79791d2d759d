package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Op names a gateway operation for failure injection.
type Op string

const (
	OpCreate   Op = "create"
	OpRetrieve Op = "retrieve"
	OpCapture  Op = "capture"
	OpCancel   Op = "cancel"
)

// Fake is an in-memory processor used in development mode and tests.
// Intents start in requires_payment_method; Confirm simulates the customer
// completing card authorization.
type Fake struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	failures map[Op][]error
	calls    map[Op]int
}

func NewFake() *Fake {
	return &Fake{
		intents:  make(map[string]*Intent),
		failures: make(map[Op][]error),
		calls:    make(map[Op]int),
	}
}

// FailNext makes the next call of op return err without side effects.
func (f *Fake) FailNext(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// Confirm moves an intent awaiting the customer to requires_capture.
func (f *Fake) Confirm(intentID string) error {
	return f.SetStatus(intentID, StatusRequiresCapture)
}

// SetStatus forces an intent into status, as the processor might on its own.
func (f *Fake) SetStatus(intentID string, status IntentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, ok := f.intents[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	in.Status = status
	return nil
}

// Calls reports how many times op was invoked, including injected failures.
func (f *Fake) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) CreateIntent(ctx context.Context, p CreateParams) (*Intent, error) {
	if err := f.begin(ctx, OpCreate); err != nil {
		return nil, err
	}
	if p.AmountMinor <= 0 {
		return nil, fmt.Errorf("fake: amount must be positive, got %d", p.AmountMinor)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Status:       StatusRequiresPaymentMethod,
		AmountMinor:  p.AmountMinor,
		Currency:     p.Currency,
	}
	f.intents[id] = in
	out := *in
	return &out, nil
}

func (f *Fake) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	if err := f.begin(ctx, OpRetrieve); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	in, ok := f.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	out := *in
	return &out, nil
}

func (f *Fake) CaptureIntent(ctx context.Context, intentID string) (*Intent, error) {
	if err := f.begin(ctx, OpCapture); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	in, ok := f.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if in.Status != StatusRequiresCapture {
		return nil, fmt.Errorf("fake: cannot capture intent in status %s", in.Status)
	}
	in.Status = StatusSucceeded
	out := *in
	return &out, nil
}

func (f *Fake) CancelIntent(ctx context.Context, intentID string) (*Intent, error) {
	if err := f.begin(ctx, OpCancel); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	in, ok := f.intents[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if in.Status != StatusRequiresCapture && !in.Status.AwaitingCustomer() {
		return nil, fmt.Errorf("fake: cannot cancel intent in status %s", in.Status)
	}
	in.Status = StatusCanceled
	out := *in
	return &out, nil
}

// begin records the call and returns an injected failure or ctx error.
func (f *Fake) begin(ctx context.Context, op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++
	if queued := f.failures[op]; len(queued) > 0 {
		f.failures[op] = queued[1:]
		return queued[0]
	}
	return ctx.Err()
}
