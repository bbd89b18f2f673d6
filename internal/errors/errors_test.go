package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinelIdentity(t *testing.T) {
	cause := stderrors.New("truncated section")
	err := WrapParse("type section", cause)

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrParse))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "ParseError", Kind(err))
}

func TestKindClassifiesEachTaxonomyMember(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{NoData(), "NoData"},
		{WrapParseMsg("bad magic"), "ParseError"},
		{WrapUnsupported("multiple memories"), "Unsupported"},
		{WrapEncode("overflow", nil), "EncodeError"},
		{WrapIO("short write", stderrors.New("disk full")), "IoError"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.kind, Kind(tc.err))
	}
}

func TestKindUnknownForForeignErrors(t *testing.T) {
	assert.Equal(t, "unknown", Kind(stderrors.New("plain error")))
}
