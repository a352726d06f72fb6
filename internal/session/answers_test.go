package session

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleIsItsOwnInverse(t *testing.T) {
	items := []string{"Web development", "Design", "Law", "Design"}
	for _, item := range items {
		a := NewAnswers()
		a.Put("skills", SetOf("Law", "Finance"))
		before := a.Clone()

		a.Toggle("skills", item)
		a.Toggle("skills", item)

		if diff := cmp.Diff(before, a); diff != "" {
			t.Fatalf("toggle %q twice changed answers (-want +got):\n%s", item, diff)
		}
	}
}

func TestToggleReportsMembership(t *testing.T) {
	a := NewAnswers()
	assert.True(t, a.Toggle("f", "x"))
	assert.Equal(t, []string{"x"}, a.Selection("f"))
	assert.False(t, a.Toggle("f", "x"))
	assert.Empty(t, a.Selection("f"))
}

func TestSetOfCollapsesDuplicates(t *testing.T) {
	v := SetOf("b", "a", "b")
	assert.Equal(t, []string{"a", "b"}, v.Set)
	assert.True(t, v.Has("a"))
	assert.False(t, v.Has("c"))
}

func TestPutKeepsPosition(t *testing.T) {
	a := NewAnswers()
	a.Put("name", Text("Ava"))
	a.Put("city", Text("Lisbon"))
	a.Put("name", Text("Eva"))

	assert.Equal(t, []string{"name", "city"}, a.Names())
	assert.Equal(t, "Eva", a.GetText("name"))

	a.Delete("name")
	assert.Equal(t, []string{"city"}, a.Names())
}

func TestAnswersJSONKeepsOrder(t *testing.T) {
	contact := NewAnswers()
	contact.Put("specialists", SetOf("Lawyer"))
	contact.Put("contact", Text("@bob"))

	a := NewAnswers()
	a.Put("name", Text("Ava"))
	a.Put("city", Text("Lisbon"))
	a.Put("skills", SetOf("Design", "Copywriting"))
	a.Put("photo", RecordOf(func() *Answers {
		r := NewAnswers()
		r.Put("file_id", Text("abc"))
		return r
	}()))
	a.Append("specialist_contacts", contact)

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "Ava",
		"city": "Lisbon",
		"skills": ["Copywriting", "Design"],
		"photo": {"file_id": "abc"},
		"specialist_contacts": [{"specialists": ["Lawyer"], "contact": "@bob"}]
	}`, string(raw))
	assert.Regexp(t, `^\{"name".*"city".*"skills".*"photo".*"specialist_contacts"`, string(raw))

	var back Answers
	require.NoError(t, json.Unmarshal(raw, &back))
	if diff := cmp.Diff(a, &back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptySetMarshalsAsArray(t *testing.T) {
	a := NewAnswers()
	a.Put("skills", SetOf())
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `{"skills":[]}`, string(raw))
}

func TestCloneIsDeep(t *testing.T) {
	a := NewAnswers()
	a.Put("skills", SetOf("Design"))
	c := a.Clone()
	c.Toggle("skills", "Law")

	assert.Equal(t, []string{"Design"}, a.Selection("skills"))
	assert.False(t, a.Equal(c))
}
