package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mricon/grokmirror-go/internal/gitutil"
	"github.com/mricon/grokmirror-go/internal/manifest"
)

func TestFingerprintEmptyRefSetIsNil(t *testing.T) {
	fp := manifest.Fingerprint(nil, nil)
	require.Nil(t, fp)
}

func TestFingerprintStableUnderRefReordering(t *testing.T) {
	refs1 := []gitutil.RefLine{
		{SHA1: "aaa", Ref: "refs/heads/main"},
		{SHA1: "bbb", Ref: "refs/heads/feature"},
	}
	refs2 := []gitutil.RefLine{
		{SHA1: "bbb", Ref: "refs/heads/feature"},
		{SHA1: "aaa", Ref: "refs/heads/main"},
	}

	fp1 := manifest.Fingerprint(refs1, nil)
	fp2 := manifest.Fingerprint(refs2, nil)
	require.NotNil(t, fp1)
	require.Equal(t, *fp1, *fp2)
}

func TestFingerprintIgnoresMatchingRefs(t *testing.T) {
	refs := []gitutil.RefLine{
		{SHA1: "aaa", Ref: "refs/heads/main"},
		{SHA1: "ccc", Ref: "refs/pull/42/head"},
	}
	withPull := manifest.Fingerprint(refs, nil)
	withoutPull := manifest.Fingerprint(refs, []string{"refs/pull/*"})

	onlyMain := manifest.Fingerprint(refs[:1], nil)

	require.NotEqual(t, *withPull, *withoutPull)
	require.Equal(t, *onlyMain, *withoutPull)
}

func TestFingerprintIdenticalReachableRefsMatch(t *testing.T) {
	refsA := []gitutil.RefLine{
		{SHA1: "aaa", Ref: "refs/heads/main"},
		{SHA1: "zzz", Ref: "refs/pull/1/head"},
	}
	refsB := []gitutil.RefLine{
		{SHA1: "aaa", Ref: "refs/heads/main"},
		{SHA1: "yyy", Ref: "refs/pull/1/head"}, // different sha1, but ignored
	}
	ignore := []string{"refs/pull/*"}

	fpA := manifest.Fingerprint(refsA, ignore)
	fpB := manifest.Fingerprint(refsB, ignore)
	require.Equal(t, *fpA, *fpB)
}
