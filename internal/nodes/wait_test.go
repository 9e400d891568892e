package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/schema"
)

func TestParseWaitDuration(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "30s", want: 30 * time.Second},
		{raw: "90m", want: 90 * time.Minute},
		{raw: "2h", want: 2 * time.Hour},
		{raw: "1d", want: 24 * time.Hour},
		{raw: "7d", want: 7 * 24 * time.Hour},
		{raw: "1.5d", want: 36 * time.Hour},
		{raw: "", wantErr: true},
		{raw: "soon", wantErr: true},
		{raw: "-5m", wantErr: true},
		{raw: "0s", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			d, err := parseWaitDuration(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
		})
	}
}

func TestWaitExecutor_SuspendsUntilDeadline(t *testing.T) {
	exec := NewWaitExecutor()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exec.now = func() time.Time { return base }

	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindWait,
		map[string]any{"duration": "2h"}, nil, nil))
	require.NoError(t, err)
	require.NotNil(t, res.Suspend)
	assert.Equal(t, schema.WaitForTimer, res.Suspend.WaitFor)
	assert.Equal(t, base.Add(2*time.Hour), *res.Suspend.WaitUntil)
}

func TestWaitExecutor_TimeoutReentryRoutesDefault(t *testing.T) {
	exec := NewWaitExecutor()

	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindWait,
		map[string]any{"duration": "2h"},
		map[string]any{
			schema.BagKeyDecision:       schema.DecisionTimeout,
			schema.BagKeyDecisionNodeID: "node-1",
		}, nil))
	require.NoError(t, err)
	assert.Nil(t, res.Suspend)
	assert.Equal(t, schema.OutputDefault, res.OutputName)
}

func TestWaitExecutor_DecisionForOtherNodeIgnored(t *testing.T) {
	exec := NewWaitExecutor()

	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindWait,
		map[string]any{"duration": "2h"},
		map[string]any{
			schema.BagKeyDecision:       schema.DecisionTimeout,
			schema.BagKeyDecisionNodeID: "somewhere-else",
		}, nil))
	require.NoError(t, err)
	require.NotNil(t, res.Suspend)
}
