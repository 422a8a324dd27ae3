package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmhub/hub/internal/agents"
	"github.com/ggmhub/hub/internal/store"
)

func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := fmt.Sprintf(`
[node]
role = "hub"

[logging]
output = "stderr"
level = "error"

[store]
path = %q

[queue]
journal_path = ""

[transport]
kind = "memory"
%s`, filepath.Join(dir, "hub.db"), extra)
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		agentsAll, sendTarget, serveLogLevel, runsLimit = false, "", "", 20
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandStructure(t *testing.T) {
	found := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, name := range []string{"version", "config", "serve", "send", "agents"} {
		assert.True(t, found[name], "missing command %s", name)
	}

	found = make(map[string]bool)
	for _, cmd := range agentsCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, name := range []string{"list", "next", "run", "runs", "import", "enable", "disable"} {
		assert.True(t, found[name], "missing agents subcommand %s", name)
	}
}

func TestConfigValidate(t *testing.T) {
	path := writeTestConfig(t, "")
	out, err := execute(t, "config", "validate", "-c", path, "--env-file", filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (node pc_hub, role hub, transport memory)")

	bad := writeTestConfig(t, "\n[telegram]\nenabled = true\n")
	out, err = execute(t, "config", "validate", "-c", bad)
	require.Error(t, err)
	assert.Contains(t, out, "telegram.token is required")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := writeTestConfig(t, "\n[smtp]\npassword = \"supersecretpassword\"\n")
	out, err := execute(t, "config", "show", "-c", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "supersecretpassword")
	assert.Contains(t, out, "supe***********word")
}

func TestSend(t *testing.T) {
	path := writeTestConfig(t, "")
	out, err := execute(t, "send", "ping", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Command 'ping' sent to laptop")

	_, err = execute(t, "send", "run_agent", "{not json", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload must be a JSON object")
}

func TestAgentsImportListNext(t *testing.T) {
	path := writeTestConfig(t, "")
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
agents:
  - name: Monday blog
    agent_type: blog_writer
    schedule_type: weekly
    schedule_day: Monday
    schedule_time: "08:30"
  - name: Quiet newsletter
    agent_type: newsletter_writer
    schedule_type: monthly
    enabled: false
`), 0600))

	out, err := execute(t, "agents", "import", seed, "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "agents: 2 created, 0 updated")

	out, err = execute(t, "agents", "list", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Monday blog")
	assert.Contains(t, out, "weekly Monday 08:30")
	assert.NotContains(t, out, "Quiet newsletter")

	out, err = execute(t, "agents", "list", "--all", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "monthly, first Monday 09:00")

	out, err = execute(t, "agents", "next", "1", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Monday blog (weekly Monday 08:30): next run Mon,")

	out, err = execute(t, "agents", "disable", "1", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "agent 1 enabled=false")

	_, err = execute(t, "agents", "next", "abc", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid agent id")
}

func TestAgentsRunRequiresProviders(t *testing.T) {
	path := writeTestConfig(t, "")
	_, err := execute(t, "agents", "run", "1", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM providers configured")
}

func TestAgentsRuns(t *testing.T) {
	path := writeTestConfig(t, "")
	out, err := execute(t, "agents", "runs", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found.")

	st, err := store.Open(filepath.Join(filepath.Dir(path), "hub.db"))
	require.NoError(t, err)
	ctx := context.Background()
	id, err := st.CreateAgentSchedule(ctx, agents.Schedule{
		Name: "Monday blog", AgentType: agents.TypeBlogWriter, ScheduleType: "weekly", Enabled: true,
	})
	require.NoError(t, err)
	first, err := st.LogAgentRun(ctx, id, agents.TypeBlogWriter, agents.RunRunning)
	require.NoError(t, err)
	require.NoError(t, st.UpdateAgentRun(ctx, first, agents.RunUpdate{Status: agents.RunFailed, ErrorMessage: "no LLM provider reachable"}))
	second, err := st.LogAgentRun(ctx, id, agents.TypeBlogWriter, agents.RunRunning)
	require.NoError(t, err)
	require.NoError(t, st.UpdateAgentRun(ctx, second, agents.RunUpdate{Status: agents.RunSuccess, OutputTitle: "Spring lawn care"}))
	require.NoError(t, st.Close())

	out, err = execute(t, "agents", "runs", "1", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "no LLM provider reachable")
	assert.Contains(t, out, "Spring lawn care")

	out, err = execute(t, "agents", "runs", "1", "--limit", "1", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Spring lawn care")
	assert.NotContains(t, out, "no LLM provider reachable")

	_, err = execute(t, "agents", "runs", "x", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid agent id")
}
