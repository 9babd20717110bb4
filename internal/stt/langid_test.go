package stt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGuesserValidatesLanguages(t *testing.T) {
	_, err := NewGuesser([]string{"es"})
	require.Error(t, err)
	_, err = NewGuesser([]string{"es", "ES", " es "})
	require.Error(t, err)
	_, err = NewGuesser([]string{"es", "xx"})
	require.Error(t, err)

	g, err := NewGuesser([]string{"es", "en"})
	require.NoError(t, err)
	require.NotNil(t, g)
}

func TestGuessRanksCandidates(t *testing.T) {
	g, err := NewGuesser([]string{"es", "en", "pt", "fr", "it"})
	require.NoError(t, err)

	got := g.Guess("Buenos días, ¿cómo estás? Hoy quiero hablar contigo sobre el trabajo.")
	require.NotEmpty(t, got)
	require.LessOrEqual(t, len(got), 3)
	require.Equal(t, "es", got[0].Lang)
	for i := 1; i < len(got); i++ {
		require.GreaterOrEqual(t, got[i-1].Prob, got[i].Prob)
	}

	got = g.Guess("Thank you very much for asking, I am doing fine today.")
	require.Equal(t, "en", got[0].Lang)
}

func TestGuessBlankAndNil(t *testing.T) {
	g, err := NewGuesser([]string{"es", "en"})
	require.NoError(t, err)
	require.NotNil(t, g.Guess("   "))
	require.Empty(t, g.Guess("   "))

	var none *Guesser
	require.Empty(t, none.Guess("hola"))
}
