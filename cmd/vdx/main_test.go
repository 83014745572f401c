package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
connectors:
  - name: mem
    type: memory
    password: hunter2
    seed:
      users:
        - {id: 1, name: alice}
        - {id: 2, name: bob}
      emails:
        - {user_id: 1, email: alice@x.com}
sources:
  - name: users
    connector: mem
    fields:
      - {name: id, primaryKey: true}
      - {name: name}
  - name: emails
    connector: mem
    fields:
      - {name: user_id, primaryKey: true}
      - {name: email, primaryKey: true}
entries:
  - id: users-ou
    parentDN: "dc=example,dc=com"
    objectClasses: [organizationalUnit]
    attributes:
      - {name: ou, rdn: true, constant: users}
  - id: user
    parent: users-ou
    objectClasses: [person]
    attributes:
      - {name: id, rdn: true, variable: users.id}
      - {name: name, variable: users.name}
      - {name: email, variable: mails.email}
    sources:
      - source: users
        fields:
          - {name: id, variable: id}
          - {name: name, variable: name}
      - alias: mails
        source: emails
        required: false
        fields:
          - {name: email, variable: email}
    relationships:
      - users.id = mails.user_id
`

func writeTestConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vdx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := execute("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "vdx version "+version)

	code, out, _ = execute("version", "--short")
	assert.Equal(t, 0, code)
	assert.Equal(t, version+"\n", out)
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := execute("serve")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown command")
}

func TestCheck(t *testing.T) {
	path := writeTestConfig(t, testConfig)

	tests := []struct {
		name     string
		args     []string
		code     int
		contains []string
		excludes []string
	}{
		{
			name:     "valid",
			args:     []string{"check", "-c", path},
			contains: []string{"ok: 2 entry mappings, 2 sources, 1 connectors"},
		},
		{
			name:     "print masks credentials",
			args:     []string{"check", "-c", path, "--print"},
			contains: []string{"********", "users.id = mails.user_id"},
			excludes: []string{"hunter2"},
		},
		{
			name: "missing file",
			args: []string{"check", "-c", filepath.Join(t.TempDir(), "none.yaml")},
			code: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, _ := execute(tt.args...)
			assert.Equal(t, tt.code, code)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestCheckReportsEveryError(t *testing.T) {
	doc := strings.Replace(testConfig, "connector: mem\n    fields:\n      - {name: user_id", "connector: hr\n    fields:\n      - {name: user_id", 1)
	doc = "engine:\n  workers: -1\n" + doc
	path := writeTestConfig(t, doc)

	code, _, errOut := execute("check", "-c", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "engine.workers: must be positive")
	assert.Contains(t, errOut, `sources[1].connector: unknown connector "hr"`)
	assert.Contains(t, errOut, "configuration has 2 error(s)")
}

func TestGraph(t *testing.T) {
	path := writeTestConfig(t, testConfig)

	code, out, _ := execute("graph", "-c", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "users-ou (under dc=example,dc=com)\n  static")
	assert.Contains(t, out, "user (under users-ou)")
	assert.Contains(t, out, "primary:    users")
	assert.Contains(t, out, "order:      users -> mails")

	code, out, _ = execute("graph", "-c", path, "user")
	require.Equal(t, 0, code)
	assert.NotContains(t, out, "users-ou (under")

	code, _, errOut := execute("graph", "-c", path, "groups")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `unknown entry mapping "groups"`)
}

func TestSearch(t *testing.T) {
	path := writeTestConfig(t, testConfig)

	tests := []struct {
		name     string
		args     []string
		code     int
		contains []string
		excludes []string
	}{
		{
			name: "one level",
			args: []string{"-b", "ou=users,dc=example,dc=com", "-s", "one"},
			contains: []string{
				"dn: id=1,ou=users,dc=example,dc=com\n",
				"email: alice@x.com\n",
				"dn: id=2,ou=users,dc=example,dc=com\n",
				"# entries: 2\n",
			},
		},
		{
			name:     "filter and attributes",
			args:     []string{"-b", "ou=users,dc=example,dc=com", "-f", "(name=bob)", "-a", "name"},
			contains: []string{"dn: id=2,ou=users,dc=example,dc=com\n", "name: bob\n", "# entries: 1\n"},
			excludes: []string{"alice"},
		},
		{
			name:     "size limit",
			args:     []string{"-b", "ou=users,dc=example,dc=com", "-s", "one", "-z", "1"},
			contains: []string{"# entries: 1\n", "# result: sizeLimitExceeded\n"},
		},
		{
			name: "bad scope",
			args: []string{"-b", "dc=example,dc=com", "-s", "everything"},
			code: 1,
		},
		{
			name: "bad filter",
			args: []string{"-b", "dc=example,dc=com", "-f", "(name="},
			code: 1,
		},
		{
			name: "missing base",
			args: []string{},
			code: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"search", "-c", path}, tt.args...)
			code, out, _ := execute(args...)
			assert.Equal(t, tt.code, code)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}
