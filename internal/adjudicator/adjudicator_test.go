package adjudicator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imxieyi/carp-judge-worker/internal/archive"
)

func TestAdjudicate_TimedOut(t *testing.T) {
	v := Adjudicate(context.Background(), Input{CaseOutcome: CaseOutcome{TimedOut: true}}, 1, 1)
	require.False(t, v.Accepted)
	require.Equal(t, "Timed out", v.Reason)
}

func TestAdjudicate_NonZeroExit(t *testing.T) {
	v := Adjudicate(context.Background(), Input{CaseOutcome: CaseOutcome{StatusCode: 1, Stdout: []byte("x")}}, 1, 1)
	require.False(t, v.Accepted)
	require.Equal(t, "Exit code is not zero", v.Reason)
}

func TestAdjudicate_EmptyStdout(t *testing.T) {
	v := Adjudicate(context.Background(), Input{CaseOutcome: CaseOutcome{Stdout: []byte("   \n")}}, 1, 1)
	require.False(t, v.Accepted)
	require.Equal(t, "No output", v.Reason)
}

func TestAdjudicate_CARPPassthrough(t *testing.T) {
	v := Adjudicate(context.Background(), Input{
		CType:       archive.CaseTypeCARP,
		CaseOutcome: CaseOutcome{Stdout: []byte("42\n")},
	}, 1, 1)
	require.True(t, v.Accepted, "reason: %s", v.Reason)
	require.Equal(t, "42\n", string(v.Raw))
}

func TestAdjudicate_IMPScoresSeedSet(t *testing.T) {
	v := Adjudicate(context.Background(), Input{
		CType: archive.CaseTypeIMP,
		CaseOutcome: CaseOutcome{
			Stdout: []byte("0\n"),
		},
		Network:   "4 3\n0 1 1.0\n1 2 1.0\n2 3 1.0\n",
		SeedCount: 1,
		Model:     "IC",
	}, 2, 5)
	require.True(t, v.Accepted, "reason: %s", v.Reason)
	require.Equal(t, float64(4), v.Score)
}

func TestAdjudicate_IMPBadSeedRejected(t *testing.T) {
	v := Adjudicate(context.Background(), Input{
		CType: archive.CaseTypeIMP,
		CaseOutcome: CaseOutcome{
			Stdout: []byte("999\n"),
		},
		Network:   "4 3\n0 1 1.0\n1 2 1.0\n2 3 1.0\n",
		SeedCount: 1,
		Model:     "IC",
	}, 2, 5)
	require.False(t, v.Accepted)
}
