// api/enforce/iptables_test.go
package enforce

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-net/warden/api/model"
)

type recordingRunner struct {
	calls  [][]string
	output map[string]string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	if out, ok := r.output[strings.Join(call, " ")]; ok {
		return out, nil
	}
	return "", nil
}

func TestApplyDirectiveBuildsTaggedBlockRule(t *testing.T) {
	runner := &recordingRunner{output: map[string]string{}}
	enf := NewIptablesEnforcer("WARDEN_POLICIES", false)
	enf.runner = runner

	err := enf.ApplyDirective(context.Background(), Directive{
		MAC: "aa:bb:cc:dd:ee:ff", Action: model.ActionBlock,
	})
	require.NoError(t, err)

	var appendCall []string
	for _, call := range runner.calls {
		if len(call) > 2 && call[1] == "-A" {
			appendCall = call
		}
	}
	require.NotNil(t, appendCall, "expected an append to the managed chain")
	joined := strings.Join(appendCall, " ")
	assert.Contains(t, joined, "-A WARDEN_POLICIES")
	assert.Contains(t, joined, "--mac-source AA:BB:CC:DD:EE:FF")
	assert.Contains(t, joined, "--comment warden:aa:bb:cc:dd:ee:ff:block")
	assert.Contains(t, joined, "-j DROP")
}

func TestQuarantineKeepsDNSReachable(t *testing.T) {
	runner := &recordingRunner{output: map[string]string{}}
	enf := NewIptablesEnforcer("WARDEN_POLICIES", false)
	enf.runner = runner

	err := enf.ApplyDirective(context.Background(), Directive{
		MAC: "aa:bb:cc:dd:ee:ff", Action: model.ActionQuarantine,
	})
	require.NoError(t, err)

	var appends []string
	for _, call := range runner.calls {
		if len(call) > 2 && call[1] == "-A" {
			appends = append(appends, strings.Join(call, " "))
		}
	}
	require.Len(t, appends, 2)
	assert.Contains(t, appends[0], "--dport 53")
	assert.Contains(t, appends[0], "-j ACCEPT")
	assert.Contains(t, appends[1], "-j DROP")
}

func TestDryRunIssuesNoCommands(t *testing.T) {
	runner := &recordingRunner{output: map[string]string{}}
	enf := NewIptablesEnforcer("WARDEN_POLICIES", true)
	enf.runner = runner

	require.NoError(t, enf.EnsureChain(context.Background()))
	require.NoError(t, enf.ApplyDirective(context.Background(), Directive{
		MAC: "aa:bb:cc:dd:ee:ff", Action: model.ActionBlock,
	}))
	require.NoError(t, enf.RemoveDirective(context.Background(), "aa:bb:cc:dd:ee:ff"))

	assert.Empty(t, runner.calls)
}

func TestListDirectivesParsesCommentTags(t *testing.T) {
	listing := strings.Join([]string{
		"-N WARDEN_POLICIES",
		`-A WARDEN_POLICIES -m mac --mac-source AA:BB:CC:DD:EE:FF -m comment --comment "warden:aa:bb:cc:dd:ee:ff:quarantine" -p udp --dport 53 -j ACCEPT`,
		`-A WARDEN_POLICIES -m mac --mac-source AA:BB:CC:DD:EE:FF -m comment --comment "warden:aa:bb:cc:dd:ee:ff:quarantine" -j DROP`,
		`-A WARDEN_POLICIES -m mac --mac-source 11:22:33:44:55:66 -m comment --comment "warden:11:22:33:44:55:66:block" -j DROP`,
		"",
	}, "\n")
	runner := &recordingRunner{output: map[string]string{
		"iptables -S WARDEN_POLICIES": listing,
	}}
	enf := NewIptablesEnforcer("WARDEN_POLICIES", false)
	enf.runner = runner

	directives, err := enf.ListDirectives(context.Background())
	require.NoError(t, err)

	require.Len(t, directives, 2)
	byMAC := map[string]model.Action{}
	for _, d := range directives {
		byMAC[d.MAC] = d.Action
	}
	assert.Equal(t, model.ActionQuarantine, byMAC["aa:bb:cc:dd:ee:ff"])
	assert.Equal(t, model.ActionBlock, byMAC["11:22:33:44:55:66"])
}
