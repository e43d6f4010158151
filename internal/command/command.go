// Package command runs free-text commands against a store session.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/n3tuk/redis-console/internal/apperr"
)

// Tokenize splits line on runs of whitespace. The verb is lower-cased and
// the remaining tokens are returned untouched.
func Tokenize(line string) (string, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, apperr.Invalid("command.Tokenize", "command cannot be empty")
	}
	return strings.ToLower(fields[0]), fields[1:], nil
}

// connectionScoped lists verbs whose effect is tied to the connection they
// run on. Sessions are pooled, so their effect would be lost or leak into
// unrelated requests.
var connectionScoped = map[string]bool{
	"select":       true,
	"auth":         true,
	"hello":        true,
	"reset":        true,
	"quit":         true,
	"multi":        true,
	"exec":         true,
	"discard":      true,
	"watch":        true,
	"unwatch":      true,
	"subscribe":    true,
	"psubscribe":   true,
	"ssubscribe":   true,
	"unsubscribe":  true,
	"punsubscribe": true,
	"sunsubscribe": true,
	"monitor":      true,
	"readonly":     true,
	"readwrite":    true,
}

// connectionScopedClient lists CLIENT subcommands that only alter the
// calling connection.
var connectionScopedClient = map[string]bool{
	"setname":  true,
	"setinfo":  true,
	"reply":    true,
	"tracking": true,
	"caching":  true,
	"no-evict": true,
	"no-touch": true,
}

// checkScope rejects commands that would only change one pooled connection.
func checkScope(verb string, args []string) error {
	const op = "command.Execute"

	switch {
	case verb == "select":
		return apperr.Invalid(op, "SELECT is not supported: set the db of the connection instead")
	case connectionScoped[verb]:
		return apperr.Invalid(op, "%s is not supported: it only affects a single pooled connection", strings.ToUpper(verb))
	case verb == "client" && len(args) > 0 && connectionScopedClient[strings.ToLower(args[0])]:
		return apperr.Invalid(op, "CLIENT %s is not supported: it only affects a single pooled connection", strings.ToUpper(args[0]))
	}
	return nil
}

// Execute runs line against client and returns the reply as-is, apart from
// a missing value becoming nil and maps getting string keys. Commands that
// change connection state are rejected; unknown verbs are left for the
// store to reject.
func Execute(ctx context.Context, client redis.UniversalClient, line string) (any, error) {
	verb, args, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	if err := checkScope(verb, args); err != nil {
		return nil, err
	}

	cmdArgs := make([]any, 0, len(args)+1)
	cmdArgs = append(cmdArgs, verb)
	for _, a := range args {
		cmdArgs = append(cmdArgs, a)
	}

	res, err := client.Do(ctx, cmdArgs...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Upstream("command.Execute", err)
	}

	return normalize(res), nil
}

// normalize converts reply maps to map[string]any so they encode as JSON.
func normalize(v any) any {
	switch x := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	default:
		return v
	}
}
