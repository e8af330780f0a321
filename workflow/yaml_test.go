package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reconPlan = `
name: recon-sweep
description: staged reconnaissance workflow
tasks:
  - id: discover
    description: enumerate live hosts
    kind: scan
    executor: scanner
    estimated_duration: 30s
    timeout: 2m
  - id: fingerprint
    description: identify services
    kind: scan
    executor: scanner
    depends_on: [discover]
    priority: 5
    retry:
      max_retries: 3
      backoff: exponential
      initial_delay: 1s
      max_delay: 30s
      multiplier: 2.0
  - id: summarize
    label: Summarize findings
    kind: report
    depends_on: [discover, fingerprint]
    parallel: false
    meta:
      format: markdown
`

func TestParsePlan(t *testing.T) {
	g, err := ParsePlan([]byte(reconPlan))
	require.NoError(t, err)

	assert.Equal(t, "recon-sweep", g.Name)
	assert.Equal(t, "staged reconnaissance workflow", g.Description)
	assert.Equal(t, 3, g.NodeCount())

	discover := g.GetNode("discover")
	require.NotNil(t, discover)
	assert.Equal(t, "scan", discover.Kind)
	assert.Equal(t, "scanner", discover.Executor)
	assert.Equal(t, 30*time.Second, discover.EstimatedDuration)
	assert.Equal(t, 2*time.Minute, discover.Timeout)
	assert.True(t, discover.Parallel, "parallel defaults to true when omitted")

	fingerprint := g.GetNode("fingerprint")
	require.NotNil(t, fingerprint)
	assert.Equal(t, 5, fingerprint.Priority)
	require.NotNil(t, fingerprint.Retry)
	assert.Equal(t, 3, fingerprint.Retry.MaxRetries)
	assert.Equal(t, BackoffExponential, fingerprint.Retry.BackoffStrategy)
	assert.Equal(t, time.Second, fingerprint.Retry.InitialDelay)
	assert.Equal(t, 30*time.Second, fingerprint.Retry.MaxDelay)
	assert.Equal(t, 2.0, fingerprint.Retry.Multiplier)

	summarize := g.GetNode("summarize")
	require.NotNil(t, summarize)
	assert.False(t, summarize.Parallel)
	assert.Equal(t, "Summarize findings", summarize.Label)
	assert.Equal(t, []string{"discover", "fingerprint"}, summarize.DependencyIDs())
	assert.Equal(t, "markdown", summarize.Meta["format"])

	plan, err := g.ExecutionPlan()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"discover"}, {"fingerprint"}, {"summarize"}}, plan)
}

func TestParsePlan_InvalidYAML(t *testing.T) {
	_, err := ParsePlan([]byte("name: [unclosed"))
	require.Error(t, err)
	assert.True(t, IsInvalidPlan(err))
	assert.Contains(t, err.Error(), "failed to parse workflow plan")
}

func TestFromPlan_Validation(t *testing.T) {
	task := func(id string, deps ...string) TaskSpec {
		return TaskSpec{ID: id, DependsOn: deps}
	}

	tests := []struct {
		name    string
		spec    *PlanSpec
		wantErr string
	}{
		{
			name:    "nil plan",
			spec:    nil,
			wantErr: "workflow plan cannot be nil",
		},
		{
			name:    "missing name",
			spec:    &PlanSpec{Tasks: []TaskSpec{task("a")}},
			wantErr: "must have a name",
		},
		{
			name:    "no tasks",
			spec:    &PlanSpec{Name: "empty"},
			wantErr: "has no tasks",
		},
		{
			name:    "task without id",
			spec:    &PlanSpec{Name: "p", Tasks: []TaskSpec{task("a"), {}}},
			wantErr: "task at index 1 has no id",
		},
		{
			name:    "duplicate task id",
			spec:    &PlanSpec{Name: "p", Tasks: []TaskSpec{task("scan"), task("scan")}},
			wantErr: `duplicate task id "scan"`,
		},
		{
			name:    "unknown dependency",
			spec:    &PlanSpec{Name: "p", Tasks: []TaskSpec{task("a"), task("b", "ghost")}},
			wantErr: `task "b" depends on unknown task "ghost"`,
		},
		{
			name: "bad estimated duration",
			spec: &PlanSpec{Name: "p", Tasks: []TaskSpec{
				{ID: "a", EstimatedDuration: "soonish"},
			}},
			wantErr: `invalid estimated_duration "soonish"`,
		},
		{
			name: "bad timeout",
			spec: &PlanSpec{Name: "p", Tasks: []TaskSpec{
				{ID: "a", Timeout: "whenever"},
			}},
			wantErr: `invalid timeout "whenever"`,
		},
		{
			name: "negative max retries",
			spec: &PlanSpec{Name: "p", Tasks: []TaskSpec{
				{ID: "a", Retry: &RetrySpec{MaxRetries: -1}},
			}},
			wantErr: "max_retries cannot be negative",
		},
		{
			name: "unknown backoff strategy",
			spec: &PlanSpec{Name: "p", Tasks: []TaskSpec{
				{ID: "a", Retry: &RetrySpec{Backoff: "fibonacci"}},
			}},
			wantErr: `unknown backoff strategy "fibonacci"`,
		},
		{
			name: "exponential backoff without multiplier",
			spec: &PlanSpec{Name: "p", Tasks: []TaskSpec{
				{ID: "a", Retry: &RetrySpec{Backoff: "exponential", MaxDelay: "10s"}},
			}},
			wantErr: "requires a multiplier above zero",
		},
		{
			name: "exponential backoff without max delay",
			spec: &PlanSpec{Name: "p", Tasks: []TaskSpec{
				{ID: "a", Retry: &RetrySpec{Backoff: "exponential", Multiplier: 2}},
			}},
			wantErr: "requires max_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromPlan(tt.spec)
			require.Error(t, err)
			assert.True(t, IsInvalidPlan(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParsePlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(reconPlan), 0o644))

	g, err := ParsePlanFile(path)
	require.NoError(t, err)
	assert.Equal(t, "recon-sweep", g.Name)
	assert.Equal(t, 3, g.NodeCount())
}

func TestParsePlanFile_Missing(t *testing.T) {
	_, err := ParsePlanFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read workflow plan")
}

func TestFromTasks(t *testing.T) {
	g, err := FromTasks("inline", []TaskSpec{
		{ID: "fetch"},
		{ID: "transform", DependsOn: []string{"fetch"}},
		{ID: "load", DependsOn: []string{"transform"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "inline", g.Name)
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "transform", "load"}, order)
}
