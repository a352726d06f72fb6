package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionPayloadRoundTrip(t *testing.T) {
	for _, a := range []Action{
		{State: "city", Verb: VerbPick, Index: 3},
		{State: "items.a", Verb: VerbToggle, Index: 0},
		{State: "formats", Verb: VerbDone},
		{State: "age", Verb: VerbBack},
		{State: "gate", Verb: VerbFill},
		{State: "gate", Verb: VerbSkip},
		{State: "more", Verb: VerbYes},
		{State: "more", Verb: VerbNo},
	} {
		got, ok := ParseAction(a.Payload())
		assert.True(t, ok, a.Payload())
		assert.Equal(t, a, got)
	}
	assert.Equal(t, "w:property_usage:pick:3", pick("property_usage", 3))
}

func TestParseActionRejects(t *testing.T) {
	for _, p := range []string{
		"", "w", "w:pick:1", "w:city:pick", "w:city:pick:x", "w:city:pick:-1",
		"w:city:done:1", "w:city:jump", "w::done", "deal:accept:1", "cancel",
	} {
		_, ok := ParseAction(p)
		assert.False(t, ok, p)
	}
}

func TestParsers(t *testing.T) {
	v, err := Line(1, 5)("  Ava ")
	assert.NoError(t, err)
	assert.Equal(t, "Ava", v.Text)
	_, err = Line(1, 5)("Avalanche")
	assert.Error(t, err)
	_, err = Line(1, 5)("   ")
	assert.Error(t, err)

	v, err = Integer(1, 50)(" 12 ")
	assert.NoError(t, err)
	assert.Equal(t, "12", v.Text)
	_, err = Integer(1, 50)("0")
	assert.Error(t, err)

	v, err = SocialHandle("@ava.b")
	assert.NoError(t, err)
	assert.Equal(t, "ava.b", v.Text)
	v, err = SocialHandle("-")
	assert.NoError(t, err)
	assert.Equal(t, "", v.Text)
	_, err = SocialHandle("not a handle")
	assert.Error(t, err)
}
