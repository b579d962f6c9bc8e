// api/enforce/iptables.go
package enforce

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/warden-net/warden/api/errors"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
)

// IptablesEnforcer realizes directives as rules in a dedicated chain
// hooked into FORWARD. Every rule carries a comment tagging the owning
// MAC, so rules can be listed and replaced without tracking handles.
type IptablesEnforcer struct {
	chain  string
	dryRun bool
	runner CommandRunner
}

// CommandRunner abstracts command execution so tests can intercept
// iptables invocations.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

func NewIptablesEnforcer(chain string, dryRun bool) *IptablesEnforcer {
	return &IptablesEnforcer{chain: chain, dryRun: dryRun, runner: execRunner{}}
}

// EnsureChain creates the managed chain and hooks it into FORWARD if
// not already present. Safe to call on every startup.
func (e *IptablesEnforcer) EnsureChain(ctx context.Context) error {
	if e.dryRun {
		logger.Info("Dry run, skipping chain setup", zap.String("chain", e.chain))
		return nil
	}
	if _, err := e.runner.Run(ctx, "iptables", "-N", e.chain); err != nil {
		// Chain may already exist; verify before giving up.
		if _, lerr := e.runner.Run(ctx, "iptables", "-L", e.chain, "-n"); lerr != nil {
			return fmt.Errorf("creating chain %s: %w", e.chain, err)
		}
	}
	if _, err := e.runner.Run(ctx, "iptables", "-C", "FORWARD", "-j", e.chain); err != nil {
		if _, ierr := e.runner.Run(ctx, "iptables", "-I", "FORWARD", "1", "-j", e.chain); ierr != nil {
			return fmt.Errorf("hooking chain %s into FORWARD: %w", e.chain, ierr)
		}
	}
	return nil
}

// ApplyDirective installs the rule for one device, replacing any rule
// the device already has. Replace-then-insert keeps the operation
// idempotent.
func (e *IptablesEnforcer) ApplyDirective(ctx context.Context, d Directive) error {
	if err := e.RemoveDirective(ctx, d.MAC); err != nil {
		return err
	}

	ruleSet, err := e.ruleArgs(d)
	if err != nil {
		return err
	}

	if e.dryRun {
		logger.Info("Dry run, directive not applied",
			zap.String("mac", d.MAC), zap.String("action", string(d.Action)))
		return nil
	}

	for _, args := range ruleSet {
		if out, err := e.runner.Run(ctx, "iptables", args...); err != nil {
			return fmt.Errorf("%w: applying %s for %s: %v (%s)",
				apperrors.ErrDirectiveRejected, d.Action, d.MAC, err, strings.TrimSpace(out))
		}
	}
	return nil
}

// RemoveDirective deletes all rules tagged with the device's MAC.
// Removing a device with no rules is a successful no-op.
func (e *IptablesEnforcer) RemoveDirective(ctx context.Context, mac string) error {
	if e.dryRun {
		return nil
	}

	rules, err := e.taggedRules(ctx)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if rule.mac != strings.ToLower(mac) {
			continue
		}
		deleteArgs := append([]string{"-D", e.chain}, rule.spec...)
		if out, err := e.runner.Run(ctx, "iptables", deleteArgs...); err != nil {
			return fmt.Errorf("%w: removing rule for %s: %v (%s)",
				apperrors.ErrDirectiveRejected, mac, err, strings.TrimSpace(out))
		}
	}
	return nil
}

// ListDirectives reads back the directives currently installed in the
// chain, keyed by the MAC comment tags.
func (e *IptablesEnforcer) ListDirectives(ctx context.Context) ([]Directive, error) {
	if e.dryRun {
		return nil, nil
	}

	rules, err := e.taggedRules(ctx)
	if err != nil {
		return nil, err
	}
	// A directive may expand to several rules sharing one tag.
	seen := make(map[string]bool, len(rules))
	directives := make([]Directive, 0, len(rules))
	for _, rule := range rules {
		if seen[rule.mac] {
			continue
		}
		seen[rule.mac] = true
		directives = append(directives, Directive{MAC: rule.mac, Action: rule.action})
	}
	return directives, nil
}

func (e *IptablesEnforcer) ruleArgs(d Directive) ([][]string, error) {
	match := []string{
		"-m", "mac", "--mac-source", strings.ToUpper(d.MAC),
		"-m", "comment", "--comment", commentTag(d.MAC, d.Action),
	}
	rule := func(extra ...string) []string {
		args := append([]string{"-A", e.chain}, match...)
		return append(args, extra...)
	}

	switch d.Action {
	case model.ActionBlock:
		return [][]string{rule("-j", "DROP")}, nil
	case model.ActionQuarantine:
		// Quarantined devices keep DNS so remediation notices stay
		// reachable, everything else is dropped.
		return [][]string{
			rule("-p", "udp", "--dport", "53", "-j", "ACCEPT"),
			rule("-j", "DROP"),
		}, nil
	case model.ActionRateLimit:
		return [][]string{
			rule("-m", "limit", "--limit", "10/second", "--limit-burst", "20", "-j", "ACCEPT"),
			rule("-j", "DROP"),
		}, nil
	}
	return nil, fmt.Errorf("%w: action %q has no rule form", apperrors.ErrDirectiveRejected, d.Action)
}

type taggedRule struct {
	mac    string
	action model.Action
	spec   []string
}

// taggedRules parses `iptables -S <chain>` output into the rules this
// enforcer owns, identified by their comment tag.
func (e *IptablesEnforcer) taggedRules(ctx context.Context) ([]taggedRule, error) {
	out, err := e.runner.Run(ctx, "iptables", "-S", e.chain)
	if err != nil {
		return nil, fmt.Errorf("listing chain %s: %v", e.chain, err)
	}

	var rules []taggedRule
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "-A" || fields[1] != e.chain {
			continue
		}
		mac, action, ok := parseCommentTag(fields)
		if !ok {
			continue
		}
		rules = append(rules, taggedRule{mac: mac, action: action, spec: fields[2:]})
	}
	return rules, nil
}

const tagPrefix = "warden:"

func commentTag(mac string, action model.Action) string {
	return tagPrefix + strings.ToLower(mac) + ":" + string(action)
}

func parseCommentTag(fields []string) (string, model.Action, bool) {
	for i, f := range fields {
		if f != "--comment" || i+1 >= len(fields) {
			continue
		}
		comment := strings.Trim(fields[i+1], `"`)
		if !strings.HasPrefix(comment, tagPrefix) {
			return "", "", false
		}
		parts := strings.SplitN(strings.TrimPrefix(comment, tagPrefix), ":", 7)
		// MAC octets contribute six parts, the action is the seventh.
		if len(parts) != 7 {
			return "", "", false
		}
		mac := strings.Join(parts[:6], ":")
		return mac, model.Action(parts[6]), true
	}
	return "", "", false
}
