package engine

import (
	"fmt"
	"sync"

	"github.com/emberbot/ember/dispatch/event"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// shared by all rules; programs built from it are stateless and safe for concurrent use
var conditionEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("message", cel.DynType),
		cel.Variable("user", cel.DynType),
		cel.Variable("reaction", cel.DynType),
	)
})

// Compiles a CEL expression which must evaluate to a boolean.
func compileCondition(expr string) (cel.Program, error) {
	env, err := conditionEnv()
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadCondition, issues.Err())
	}
	switch ast.OutputType().Kind() {
	case types.BoolKind, types.DynKind:
	default:
		return nil, fmt.Errorf("%w: expression must be boolean, got %s", ErrBadCondition, ast.OutputType())
	}
	prg, err := env.Program(ast, cel.CostLimit(100_000))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadCondition, err)
	}
	return prg, nil
}

func conditionVars(evt *event.Event) map[string]any {
	msg := evt.Message
	mentions := msg.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	reaction := map[string]any{}
	if evt.Reaction != nil {
		reaction["name"] = evt.Reaction.Name
		reaction["id"] = evt.Reaction.ID
	}
	return map[string]any{
		"message": map[string]any{
			"id":       msg.ID,
			"guild":    msg.GuildID,
			"channel":  msg.ChannelID,
			"content":  msg.Content,
			"mentions": mentions,
			"author": map[string]any{
				"id":       msg.Author.ID,
				"username": msg.Author.Username,
			},
		},
		"user": map[string]any{
			"id":       evt.User.ID,
			"username": evt.User.Username,
		},
		"reaction": reaction,
	}
}

func evalCondition(prg cel.Program, evt *event.Event) (bool, error) {
	out, _, err := prg.Eval(conditionVars(evt))
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, not bool", out.Value())
	}
	return b, nil
}
