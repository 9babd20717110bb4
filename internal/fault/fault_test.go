package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("speak: %w", Input("resolve voice", "no reference for %s", "cosyvoice"))

	require.Equal(t, KindInput, KindOf(err))
	require.True(t, IsInput(err))
	require.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	require.Contains(t, err.Error(), "no reference for cosyvoice")
}

func TestInvocationAndEncodingAre500(t *testing.T) {
	cause := errors.New("CUDA out of memory")

	inv := Invocation("synthesize", cause)
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(inv))
	require.ErrorIs(t, inv, cause)
	require.Equal(t, "synthesize: CUDA out of memory", inv.Error())

	enc := Encoding("encode wav", cause)
	require.Equal(t, KindEncoding, KindOf(enc))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(enc))
}

func TestUnclassified(t *testing.T) {
	err := errors.New("boom")
	require.Equal(t, KindUnknown, KindOf(err))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	require.Equal(t, "unknown", KindOf(err).String())
}
