package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/worker"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, exitTempFail, exitCode(fmt.Errorf("deploy: %w", domain.ErrConcurrentRun)))
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"deploy", "dispatch", "kill", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestDeployCmd_Flags(t *testing.T) {
	cmd := newDeployCmd(&env{})
	require.NoError(t, cmd.ParseFlags([]string{"--force", "-n"}))

	force, err := cmd.Flags().GetBool("force")
	require.NoError(t, err)
	dry, err := cmd.Flags().GetBool("dry-run")
	require.NoError(t, err)
	assert.True(t, force)
	assert.True(t, dry)
}

func TestPrintDeploy(t *testing.T) {
	var buf bytes.Buffer
	printDeploy(&buf, worker.DeployReport{
		Queue:    worker.QueueReport{Selected: 2, Completed: 2, EntriesCreated: 3},
		Dispatch: worker.DispatchReport{Selected: 3, Sent: 2, Failed: 1},
	}, false)
	assert.Contains(t, buf.String(), "entries=3")
	assert.Contains(t, buf.String(), "sent=2 failed=1")

	buf.Reset()
	printDeploy(&buf, worker.DeployReport{}, true)
	assert.Contains(t, buf.String(), "skipped (dry run)")
}
