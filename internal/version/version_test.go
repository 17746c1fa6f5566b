package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setBuildInfo(t *testing.T, v, c, d string) {
	t.Helper()

	prevVersion, prevCommit, prevDate := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() {
		version, commit, date = prevVersion, prevCommit, prevDate
	})
}

func TestDefaultsForLocalBuild(t *testing.T) {
	v, c, d := Info()
	require.NotEmpty(t, v)
	require.NotEmpty(t, c)
	require.NotEmpty(t, d)
	require.Equal(t, v, GetVersion())
	require.Equal(t, c, GetCommit())
	require.Equal(t, d, GetDate())
}

func TestLinkerValuesReachHealthAndStartupLog(t *testing.T) {
	setBuildInfo(t, "v1.4.0", "3f2c9ab", "2026-10-01T12:00:00Z")

	require.Equal(t, "v1.4.0", GetVersion())
	require.Equal(t, "3f2c9ab", GetCommit())
	require.Equal(t, "2026-10-01T12:00:00Z", GetDate())
	require.Equal(t, "version=v1.4.0 commit=3f2c9ab date=2026-10-01T12:00:00Z", String())
}
