package document

import (
	"testing"

	"github.com/teleivo/assertive/assert"
	"github.com/teleivo/assertive/require"
)

func TestCollectionOpenFind(t *testing.T) {
	c := NewCollection()
	err := c.Open("file:///a.txt", "hello\n")
	require.NoErrorf(t, err, "open failed")

	doc, ok := c.Find("file:///a.txt")
	require.Truef(t, ok, "want document found")
	assert.EqualValuesf(t, doc.DocumentLength(), len("hello\n"), "unexpected length")
	assert.EqualValuesf(t, doc.LastGlobalVersion(), c.GlobalVersion(), "open must stamp current global version")
}

func TestCollectionOpenIgnoresSecondOpenForSameURI(t *testing.T) {
	c := NewCollection()
	require.NoErrorf(t, c.Open("file:///a.txt", "original\n"), "first open failed")
	before := c.GlobalVersion()

	require.NoErrorf(t, c.Open("file:///a.txt", "replaced\n"), "second open failed")

	doc, ok := c.Find("file:///a.txt")
	require.Truef(t, ok, "want document still present")
	var got []byte
	doc.RequestContent(func(b []byte) { got = b })
	assert.EqualValuesf(t, string(got), "original\n", "second open must not replace existing content")
	assert.EqualValuesf(t, c.GlobalVersion(), before, "second open must not bump global version")
}

func TestCollectionOpenRejectsInvalidURI(t *testing.T) {
	c := NewCollection()
	err := c.Open("not a uri\x00", "x")
	assert.Truef(t, err != nil, "want an error for a malformed URI")
}

func TestCollectionClose(t *testing.T) {
	c := NewCollection()
	require.NoErrorf(t, c.Open("file:///a.txt", "x"), "open failed")
	c.Close("file:///a.txt")

	_, ok := c.Find("file:///a.txt")
	assert.Falsef(t, ok, "want document gone after close")
}

func TestCollectionCloseUnknownURIIsNoOp(t *testing.T) {
	c := NewCollection()
	c.Close("file:///never-opened.txt")
}

func TestCollectionChangeBumpsGlobalVersion(t *testing.T) {
	c := NewCollection()
	require.NoErrorf(t, c.Open("file:///a.txt", "abc\n"), "open failed")
	before := c.GlobalVersion()

	c.Change("file:///a.txt", []Change{
		{
			Range: &Range{Start: Position{Line: 0, Character: 0}, End: Position{Line: 0, Character: 0}},
			Text:  "X",
		},
	})

	doc, ok := c.Find("file:///a.txt")
	require.Truef(t, ok, "want document still present")
	assert.Truef(t, doc.LastGlobalVersion() > before, "accepted change must bump global version")

	var got []byte
	doc.RequestContent(func(b []byte) { got = b })
	assert.EqualValuesf(t, string(got), "Xabc\n", "unexpected content")
}

func TestCollectionChangeUnknownURIIsNoOp(t *testing.T) {
	c := NewCollection()
	c.Change("file:///never-opened.txt", []Change{{Text: "x"}})
}

func TestCollectionChangeRejectedDoesNotBumpVersion(t *testing.T) {
	c := NewCollection()
	require.NoErrorf(t, c.Open("file:///a.txt", "abc\n"), "open failed")
	doc, _ := c.Find("file:///a.txt")
	before := doc.LastGlobalVersion()
	beforeGlobal := c.GlobalVersion()

	c.Change("file:///a.txt", []Change{
		{
			Range: &Range{Start: Position{Line: 0, Character: 99}, End: Position{Line: 0, Character: 99}},
			Text:  "x",
		},
	})

	assert.EqualValuesf(t, doc.LastGlobalVersion(), before, "rejected change must not stamp a new version")
	assert.EqualValuesf(t, c.GlobalVersion(), beforeGlobal, "rejected change must not bump global version")
}

func TestCollectionMapChangedSince(t *testing.T) {
	c := NewCollection()
	require.NoErrorf(t, c.Open("file:///a.txt", "a\n"), "open a failed")
	baseline := c.GlobalVersion()
	require.NoErrorf(t, c.Open("file:///b.txt", "b\n"), "open b failed")

	var changed []string
	c.MapChangedSince(baseline, func(u string, doc *Document) {
		changed = append(changed, u)
	})

	require.EqualValuesf(t, len(changed), 1, "want exactly one document changed since baseline")
	assert.EqualValuesf(t, changed[0], "file:///b.txt", "unexpected changed uri")
}

func TestCollectionSaveIsNoOp(t *testing.T) {
	c := NewCollection()
	require.NoErrorf(t, c.Open("file:///a.txt", "x"), "open failed")
	doc, _ := c.Find("file:///a.txt")
	before := doc.LastGlobalVersion()

	c.Save("file:///a.txt")

	assert.EqualValuesf(t, doc.LastGlobalVersion(), before, "save must not change document state")
}
