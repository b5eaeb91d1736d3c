package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// RuleExplainer produces explanations from a built-in table of common
// tools and subcommands. It is always available and never leaves the
// process, which makes it the safe default backend.
type RuleExplainer struct{}

// NewRuleExplainer creates the built-in rule-based explainer.
func NewRuleExplainer() *RuleExplainer {
	return &RuleExplainer{}
}

func (e *RuleExplainer) Name() string    { return "rules" }
func (e *RuleExplainer) Available() bool { return true }

// toolDescriptions covers the head tokens seen most often in shell history.
var toolDescriptions = map[string]string{
	"ls":     "lists directory contents",
	"cd":     "changes the working directory",
	"cat":    "prints file contents",
	"grep":   "searches text for a pattern",
	"find":   "walks a directory tree matching files",
	"rm":     "removes files or directories",
	"cp":     "copies files",
	"mv":     "moves or renames files",
	"mkdir":  "creates directories",
	"ssh":    "opens a remote shell over SSH",
	"scp":    "copies files over SSH",
	"curl":   "transfers data from or to a URL",
	"wget":   "downloads files from a URL",
	"tar":    "creates or extracts archives",
	"ps":     "lists running processes",
	"kill":   "sends a signal to a process",
	"chmod":  "changes file permissions",
	"chown":  "changes file ownership",
	"git":    "version control",
	"docker": "container runtime",
	"make":   "runs build targets",
	"go":     "Go toolchain",
	"npm":    "Node.js package manager",
	"pip":    "Python package manager",
}

// subcommandDescriptions refines two-token commands for the common tools.
var subcommandDescriptions = map[string]string{
	"git status":     "shows the working tree status",
	"git add":        "stages changes for the next commit",
	"git commit":     "records staged changes as a commit",
	"git push":       "uploads local commits to a remote",
	"git pull":       "fetches and merges remote changes",
	"git log":        "shows the commit history",
	"git diff":       "shows changes between commits or the working tree",
	"git checkout":   "switches branches or restores files",
	"git branch":     "lists or manages branches",
	"git stash":      "shelves uncommitted changes",
	"docker build":   "builds an image from a Dockerfile",
	"docker run":     "starts a new container",
	"docker ps":      "lists containers",
	"docker exec":    "runs a command inside a running container",
	"docker logs":    "shows a container's output",
	"go build":       "compiles Go packages",
	"go test":        "runs Go tests",
	"go run":         "compiles and runs a Go program",
	"npm install":    "installs package dependencies",
	"npm run":        "runs a package script",
	"pip install":    "installs Python packages",
	"kubectl get":    "lists Kubernetes resources",
	"kubectl apply":  "applies a Kubernetes manifest",
	"kubectl logs":   "shows pod logs",
	"kubectl delete": "deletes Kubernetes resources",
}

// Explain describes the command from the rule tables. Unknown tools get a
// generic one-liner rather than an error so the operation always answers.
func (e *RuleExplainer) Explain(_ context.Context, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("empty command")
	}

	tokens, err := shlex.Split(command)
	if err != nil || len(tokens) == 0 {
		tokens = strings.Fields(command)
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("empty command")
	}

	tool := tokens[0]
	var desc string
	if len(tokens) >= 2 {
		desc = subcommandDescriptions[tool+" "+tokens[1]]
	}
	if desc == "" {
		desc = toolDescriptions[tool]
	}
	if desc == "" {
		return fmt.Sprintf("%s: runs the %q program", command, tool), nil
	}

	var flags []string
	for _, tok := range tokens[1:] {
		if strings.HasPrefix(tok, "-") && tok != "-" {
			flags = append(flags, tok)
		}
	}
	if len(flags) > 0 {
		return fmt.Sprintf("%s: %s (flags: %s)", command, desc, strings.Join(flags, ", ")), nil
	}
	return fmt.Sprintf("%s: %s", command, desc), nil
}
