package build

import (
	"io"
	"testing"

	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

// TestParseAndSetDebugLevels tests that we can properly set the log levels for
// all and individual subsystems.
func TestParseAndSetDebugLevels(t *testing.T) {
	testCases := []struct {
		name        string
		debugLevel  string
		expErr      string
		expSubLevel map[string]btclogv1.Level
	}{
		{
			name:       "empty log level",
			debugLevel: "",
			expErr:     "invalid",
		},
		{
			name:       "invalid global debug level",
			debugLevel: "ddddddebug",
			expErr:     "invalid",
		},
		{
			name:       "global debug level",
			debugLevel: "debug",
			expSubLevel: map[string]btclogv1.Level{
				"MSIG": btclogv1.LevelDebug,
				"CORD": btclogv1.LevelDebug,
			},
		},
		{
			name:       "invalid global debug level#2",
			debugLevel: "debug,foo",
			expErr:     "invalid",
		},
		{
			name:       "invalid subsystem",
			debugLevel: "NOPE=debug",
			expErr:     "invalid",
		},
		{
			name:       "invalid subsystem level",
			debugLevel: "MSIG=loud",
			expErr:     "invalid",
		},
		{
			name:       "invalid pair format",
			debugLevel: "MSIG=debug=trace",
			expErr:     "invalid format",
		},
		{
			name:       "valid subsystem debug level",
			debugLevel: "MSIG=trace,CORD=warn",
			expSubLevel: map[string]btclogv1.Level{
				"MSIG": btclogv1.LevelTrace,
				"CORD": btclogv1.LevelWarn,
			},
		},
		{
			name:       "valid global and subsystem debug levels",
			debugLevel: "error,MSIG=trace",
			expSubLevel: map[string]btclogv1.Level{
				"MSIG": btclogv1.LevelTrace,
				"CORD": btclogv1.LevelError,
			},
		},
	}

	for _, test := range testCases {
		test := test
		t.Run(test.name, func(t *testing.T) {
			handler := btclog.NewDefaultHandler(io.Discard)
			manager := NewSubLoggerManager(handler)
			manager.GenSubLogger("MSIG")
			manager.GenSubLogger("CORD")

			err := ParseAndSetDebugLevels(test.debugLevel, manager)
			if test.expErr != "" {
				require.ErrorContains(t, err, test.expErr)
				return
			}
			require.NoError(t, err)

			subLoggers := manager.SubLoggers()
			for subsystem, level := range test.expSubLevel {
				require.Equal(
					t, level, subLoggers[subsystem].Level(),
				)
			}
		})
	}
}

// TestSubLoggerManager checks that loggers are created once per subsystem.
func TestSubLoggerManager(t *testing.T) {
	manager := NewSubLoggerManager(btclog.NewDefaultHandler(io.Discard))

	l1 := manager.GenSubLogger("MSIG")
	l2 := manager.GenSubLogger("MSIG")
	require.Same(t, l1, l2)

	manager.GenSubLogger("AAAA")
	require.Equal(
		t, []string{"AAAA", "MSIG"}, manager.SupportedSubsystems(),
	)

	var got btclog.Logger
	manager.AddLogger("BBBB", func(l btclog.Logger) {
		got = l
	})
	require.NotNil(t, got)

	// Unknown subsystems are ignored.
	manager.SetLogLevel("ZZZZ", "debug")
	manager.SetLogLevel("AAAA", "critical")
	require.Equal(
		t, btclogv1.LevelCritical, manager.SubLoggers()["AAAA"].Level(),
	)
}

// TestDeploymentString checks the names of the deployment types.
func TestDeploymentString(t *testing.T) {
	require.Equal(t, "development", Development.String())
	require.Equal(t, "production", Production.String())
	require.Equal(t, "unknown", DeploymentType(7).String())
}
