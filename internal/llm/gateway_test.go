package llm

import (
	"context"
	"errors"
	"testing"

	"aria/internal/coreerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, prompt string, params CompletionParams) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func TestGateway_Complete_ReturnsPrimaryOnSuccess(t *testing.T) {
	primary := &fakeProvider{name: "p", text: "hello"}
	fallback := &fakeProvider{name: "f", text: "bye"}
	gw := NewGateway([]Provider{primary, fallback})

	out, err := gw.Complete(context.Background(), "hi", CompletionParams{})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 0, fallback.calls)
}

func TestGateway_Complete_AdvancesOnTimeout(t *testing.T) {
	primary := &fakeProvider{name: "p", err: coreerr.Wrap(coreerr.Timeout, errors.New("slow"))}
	fallback := &fakeProvider{name: "f", text: "bye"}
	gw := NewGateway([]Provider{primary, fallback})

	out, err := gw.Complete(context.Background(), "hi", CompletionParams{})
	require.NoError(t, err)
	assert.Equal(t, "bye", out)
	assert.Equal(t, 1, fallback.calls)
}

func TestGateway_Complete_DoesNotAdvanceOnCancelled(t *testing.T) {
	primary := &fakeProvider{name: "p", err: coreerr.Wrap(coreerr.Cancelled, errors.New("client gone"))}
	fallback := &fakeProvider{name: "f", text: "bye"}
	gw := NewGateway([]Provider{primary, fallback})

	_, err := gw.Complete(context.Background(), "hi", CompletionParams{})
	require.Error(t, err)
	assert.Equal(t, coreerr.Cancelled, coreerr.As(err))
	assert.Equal(t, 0, fallback.calls)
}

func TestGateway_Complete_DoesNotAdvanceOnInvalid(t *testing.T) {
	primary := &fakeProvider{name: "p", err: coreerr.Wrap(coreerr.Invalid, errors.New("bad request"))}
	fallback := &fakeProvider{name: "f", text: "bye"}
	gw := NewGateway([]Provider{primary, fallback})

	_, err := gw.Complete(context.Background(), "hi", CompletionParams{})
	require.Error(t, err)
	assert.Equal(t, coreerr.Invalid, coreerr.As(err))
	assert.Equal(t, 0, fallback.calls)
}

func TestGateway_Complete_PrimaryOOMTriggersCooldown(t *testing.T) {
	primary := &fakeProvider{name: "p", err: coreerr.Wrap(coreerr.Unavailable, errors.New("oom"))}
	fallback := &fakeProvider{name: "f", text: "bye"}
	gw := NewGateway([]Provider{primary, fallback})

	_, err := gw.Complete(context.Background(), "hi", CompletionParams{})
	require.NoError(t, err)

	// second call: primary should be skipped while on cooldown
	primary.err = nil
	primary.text = "should not be used"
	out, err := gw.Complete(context.Background(), "hi", CompletionParams{})
	require.NoError(t, err)
	assert.Equal(t, "bye", out)
	assert.Equal(t, 1, primary.calls)
}

func TestGateway_Complete_NoProvidersConfigured(t *testing.T) {
	gw := NewGateway(nil)
	_, err := gw.Complete(context.Background(), "hi", CompletionParams{})
	require.Error(t, err)
}

func TestGateway_Stream_EmitsSingleTerminalToken(t *testing.T) {
	primary := &fakeProvider{name: "p", text: "hello"}
	gw := NewGateway([]Provider{primary})

	tokens, err := gw.Stream(context.Background(), "hi", CompletionParams{})
	require.NoError(t, err)

	var got []Token
	for tok := range tokens {
		got = append(got, tok)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Value)
	assert.True(t, got[0].Done)
	assert.NoError(t, got[0].Err)
}

func TestValidateParams_AppliesDefaultsAndClamps(t *testing.T) {
	p := ValidateParams(CompletionParams{})
	assert.Equal(t, defaultMaxTokens, p.MaxTokens)
	assert.Equal(t, defaultTemp, p.Temperature)

	p = ValidateParams(CompletionParams{MaxTokens: 999999, Temperature: 5})
	assert.Equal(t, maxMaxTokens, p.MaxTokens)
	assert.Equal(t, maxTemp, p.Temperature)
}

func TestCompleteAdapter_SatisfiesMemoryCompleter(t *testing.T) {
	primary := &fakeProvider{name: "p", text: "summary text"}
	gw := NewGateway([]Provider{primary})
	adapter := CompleteAdapter{Gateway: gw}

	out, err := adapter.Complete(context.Background(), "summarize this")
	require.NoError(t, err)
	assert.Equal(t, "summary text", out)
}
