// Copyright 2026 Weft Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package skill

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/weftdb/weft/internal/log"
)

// commandTimeout bounds each embedded !`cmd` execution.
const commandTimeout = 30 * time.Second

// Expansion is the result of executing a skill.
type Expansion struct {
	Instructions string
	AllowedTools []string
	Context      string
}

// Execute expands the skill's instructions against the given argument
// string and call-site variables. The three stages run in order:
// arguments, ${NAME} variables, embedded commands.
func Execute(ctx context.Context, s *Skill, argString string, vars map[string]string) *Expansion {
	body := substituteArguments(s.Instructions, argString)
	body = substituteVariables(body, vars)
	body = substituteCommands(ctx, body)

	return &Expansion{
		Instructions: body,
		AllowedTools: s.AllowedTools,
		Context:      s.Context,
	}
}

var (
	argIndexedRe    = regexp.MustCompile(`\$ARGUMENTS\[(\d+)\]`)
	argPositionalRe = regexp.MustCompile(`\$(\d+)`)
	varRe           = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	cmdRe           = regexp.MustCompile("!`([^`]+)`")
)

// substituteArguments expands $ARGUMENTS, $ARGUMENTS[n] (zero-indexed)
// and $n (one-indexed).
func substituteArguments(body, argString string) string {
	tokens := TokenizeArgs(argString)

	body = argIndexedRe.ReplaceAllStringFunc(body, func(m string) string {
		idx, _ := strconv.Atoi(argIndexedRe.FindStringSubmatch(m)[1])
		if idx < len(tokens) {
			return tokens[idx]
		}
		return ""
	})
	body = strings.ReplaceAll(body, "$ARGUMENTS", argString)
	body = argPositionalRe.ReplaceAllStringFunc(body, func(m string) string {
		n, _ := strconv.Atoi(m[1:])
		if n >= 1 && n <= len(tokens) {
			return tokens[n-1]
		}
		return ""
	})
	return body
}

// substituteVariables expands ${NAME} from the call-site map first, then
// the environment. Unknown names expand to empty.
func substituteVariables(body string, vars map[string]string) string {
	return varRe.ReplaceAllStringFunc(body, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
}

// substituteCommands runs each embedded !`cmd` and splices in its
// stdout. Timeouts and non-zero exits yield an empty expansion.
func substituteCommands(ctx context.Context, body string) string {
	return cmdRe.ReplaceAllStringFunc(body, func(m string) string {
		command := cmdRe.FindStringSubmatch(m)[1]

		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		out, err := exec.CommandContext(cmdCtx, "sh", "-c", command).Output()
		if err != nil {
			log.Warn("skill command failed",
				zap.String("command", command),
				zap.Error(err))
			return ""
		}
		return strings.TrimRight(string(out), "\n")
	})
}

// TokenizeArgs splits an argument string on whitespace, honoring single
// and double quotes. Quotes group words and are stripped from the token.
func TokenizeArgs(s string) []string {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote rune

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
