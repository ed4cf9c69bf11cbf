// Package policy enforces the command and repository rules the gateway
// applies before any backend dispatch. Free-form commands pass only when an
// allow-listed executable starts them and no deny pattern matches; deny wins
// when both match. The argv checker is the preferred path: it validates a
// structured argument vector without ever interpreting a shell string.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	dErrors "bastion/pkg/domain-errors"
)

// Config holds the policy rule set. Zero values fall back to the defaults.
type Config struct {
	AllowedExecutables []string `yaml:"allowed_executables"`
	DenyPatterns       []string `yaml:"deny_patterns"`
	TrustedRepoPattern string   `yaml:"trusted_repo_pattern"`
}

// defaultAllowedExecutables is the fixed allow list of command leaders.
var defaultAllowedExecutables = []string{
	"git", "npm", "node", "ls", "cat", "echo", "cd", "mkdir", "cp", "mv",
}

// defaultDenyPatterns match destructive or escalating constructions. The
// list is checked against the whole command string and wins over the allow
// list.
var defaultDenyPatterns = []string{
	`\brm\s+(-[a-zA-Z]*\s+)*-[a-zA-Z]*[rf]`,   // rm -rf and friends
	`\bsudo\b`,                                // privilege escalation
	`\bsu\s`,                                  //
	`\bchmod\s+[0-7]*7[0-7]*7`,                // world-writable grants
	`\b(apt|apt-get|yum|dnf|apk|brew)\s+(\S+\s+)*install\b`, // system package installs
	`\bnpm\s+(install|i)\s+(-\S+\s+)*(-g|--global)\b`,       // global npm installs
	`\b(curl|wget)\b[^|;]*\|\s*\S*sh\b`,       // piping a download into a shell
	`\b(nc|ncat|netcat|telnet)\b`,             // remote shell tooling
	`/dev/tcp/`,                               //
	`\b(mkfs|shutdown|reboot|halt)\b`,         //
	`:\(\)\s*\{`,                              // fork bomb
	`\bdd\s+[^|;]*of=/dev/`,                   //
}

// defaultTrustedRepoPattern accepts repositories under the deployment
// organization only.
const defaultTrustedRepoPattern = `^https://github\.com/acme-dev/[A-Za-z0-9._-]+(\.git)?$`

// shellMetacharacters are stripped from free-text values before they are
// interpolated into a command.
var shellMetacharacters = regexp.MustCompile("[;&|`$(){}<>!\\\\'\"\n\r*?\\[\\]~#]")

// Policy is the compiled rule set.
type Policy struct {
	allowed     map[string]struct{}
	deny        []*regexp.Regexp
	trustedRepo *regexp.Regexp
}

// New compiles a policy from the config, substituting defaults for any empty
// section.
func New(cfg Config) (*Policy, error) {
	executables := cfg.AllowedExecutables
	if len(executables) == 0 {
		executables = defaultAllowedExecutables
	}
	patterns := cfg.DenyPatterns
	if len(patterns) == 0 {
		patterns = defaultDenyPatterns
	}
	repoPattern := cfg.TrustedRepoPattern
	if repoPattern == "" {
		repoPattern = defaultTrustedRepoPattern
	}

	p := &Policy{allowed: make(map[string]struct{}, len(executables))}
	for _, exe := range executables {
		p.allowed[exe] = struct{}{}
	}
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile deny pattern %q: %w", pattern, err)
		}
		p.deny = append(p.deny, re)
	}
	re, err := regexp.Compile(repoPattern)
	if err != nil {
		return nil, fmt.Errorf("compile trusted repo pattern %q: %w", repoPattern, err)
	}
	p.trustedRepo = re
	return p, nil
}

// Default returns the policy built from the built-in rule set.
func Default() *Policy {
	p, err := New(Config{})
	if err != nil {
		// The built-in patterns are compile-tested; this cannot happen.
		panic(err)
	}
	return p
}

// CheckCommand decides whether a free-form command string may run. The deny
// patterns are evaluated first so a denied construction never passes on the
// strength of its leading executable.
func (p *Policy) CheckCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return dErrors.New(dErrors.CodePolicyViolation, "empty command")
	}
	for _, re := range p.deny {
		if re.MatchString(trimmed) {
			return dErrors.New(dErrors.CodePolicyViolation, "command matches denied pattern")
		}
	}
	leader := strings.Fields(trimmed)[0]
	if _, ok := p.allowed[leader]; !ok {
		return dErrors.New(dErrors.CodePolicyViolation, fmt.Sprintf("command %q is not allow-listed", leader))
	}
	return nil
}

// CheckArgv decides whether a structured command may run. Only the
// executable is inspected; arguments are data, never shell input.
func (p *Policy) CheckArgv(argv []string) error {
	if len(argv) == 0 {
		return dErrors.New(dErrors.CodePolicyViolation, "empty command")
	}
	if _, ok := p.allowed[argv[0]]; !ok {
		return dErrors.New(dErrors.CodePolicyViolation, fmt.Sprintf("command %q is not allow-listed", argv[0]))
	}
	return nil
}

// CheckRepoURL decides whether a repository may be fetched. Anything outside
// the trusted-organization pattern is rejected before reaching the backend.
func (p *Policy) CheckRepoURL(url string) error {
	if !p.trustedRepo.MatchString(url) {
		return dErrors.New(dErrors.CodePolicyViolation, "repository is outside the trusted organization")
	}
	return nil
}

// SanitizeArgument strips shell metacharacters from a free-text value before
// it is interpolated into a command.
func SanitizeArgument(value string) string {
	return shellMetacharacters.ReplaceAllString(value, "")
}
