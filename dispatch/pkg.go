package dispatch

import (
	"github.com/emberbot/ember/dispatch/engine"
	"github.com/emberbot/ember/dispatch/event"
)

type Engine = engine.Engine
type Config = engine.Config
type RuleSet = engine.RuleSet
type Rule = engine.Rule
type RuleOptions = engine.RuleOptions
type RuleContext = engine.RuleContext
type Toolkit = engine.Toolkit
type Unit = engine.Unit
type Registrar = engine.Registrar

type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier

type HandlerFunc = engine.HandlerFunc
type CooldownFunc = engine.CooldownFunc

type Event = event.Event
type Message = event.Message
type User = event.User

var (
	ErrContinue = engine.ErrContinue

	KindMessage = event.KindMessage
	KindReact   = event.KindReact
	KindUnreact = event.KindUnreact

	AnyChannel = engine.AnyChannel
)
