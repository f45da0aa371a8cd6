package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryDigestDeterministic(t *testing.T) {
	e := Entry{Seq: 7, ActionName: "ADDCOMMENT", Payload: IRObject{"text": IRString("hi"), "n": IRInt(1)}}

	d1, err := EntryDigest(e)
	require.NoError(t, err)
	d2, err := EntryDigest(e.Clone())
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestEntryDigestDistinguishesContent(t *testing.T) {
	base := Entry{Seq: 7, ActionName: "ADDCOMMENT", Payload: IRObject{"text": IRString("hi")}}
	variants := []Entry{
		{Seq: 8, ActionName: "ADDCOMMENT", Payload: IRObject{"text": IRString("hi")}},
		{Seq: 7, ActionName: "APPROVED", Payload: IRObject{"text": IRString("hi")}},
		{Seq: 7, ActionName: "ADDCOMMENT", Payload: IRObject{"text": IRString("bye")}},
		{Seq: 7, ActionName: "ADDCOMMENT"},
	}

	want, err := EntryDigest(base)
	require.NoError(t, err)
	for _, v := range variants {
		got, err := EntryDigest(v)
		require.NoError(t, err)
		assert.NotEqual(t, want, got, "variant %+v", v)
	}
}

func TestEntryDigestDomainSeparation(t *testing.T) {
	assert.NotEqual(t,
		hashWithDomain("a", []byte("bc")),
		hashWithDomain("ab", []byte("c")),
	)
}
