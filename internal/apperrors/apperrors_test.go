package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NilErrorReturnsNil(t *testing.T) {
	assert.NoError(t, New(Config, "load", nil))
}

func TestNew_WrapsWithKindAndUnwraps(t *testing.T) {
	cause := errors.New("missing api_key")
	err := New(Config, "load", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, Config))
	assert.False(t, Is(err, Data))
}

func TestError_MessageIncludesKindOpAndCause(t *testing.T) {
	err := New(BrokerPermanent, "submit_order", errors.New("insufficient buying power"))
	assert.EqualError(t, err, "BrokerPermanentError: submit_order: insufficient buying power")
}

func TestError_MessageOmitsOpWhenEmpty(t *testing.T) {
	err := New(Data, "", errors.New("bad bar"))
	assert.EqualError(t, err, "DataError: bad bar")
}

func TestFatal_OnlyConfigKindIsFatal(t *testing.T) {
	cases := []struct {
		kind  Kind
		fatal bool
	}{
		{Config, true},
		{BrokerTransient, false},
		{BrokerPermanent, false},
		{Data, false},
		{State, false},
		{Lifecycle, false},
	}
	for _, tc := range cases {
		err := New(tc.kind, "op", errors.New("x"))
		assert.Equal(t, tc.fatal, Fatal(err), "Fatal(%s)", tc.kind)
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		Config:          "ConfigError",
		BrokerTransient: "BrokerTransientError",
		BrokerPermanent: "BrokerPermanentError",
		Data:            "DataError",
		State:           "StateError",
		Lifecycle:       "LifecycleError",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestIs_FalseForPlainError(t *testing.T) {
	assert.False(t, Is(fmt.Errorf("plain error"), Config))
}
