// Rule-driven event router for a chat bot.
//
// This package (`github.com/emberbot/ember/dispatch`) routes platform events (new messages, and reactions added to or removed from messages) to an ordered list of rules. Each rule pairs a set of predicates (event kind, channel scope, member permissions, bot mention, a content regex, an optional CEL condition) with a handler. Rules are scanned in registration order and the first one whose handler does not ask to continue stops the scan. Rules may also carry a cooldown, tracked in a persistent key/value store, so they fire at most once per window.
//
// Most of the machinery lives in sub-packages: `engine` for the registry and matcher, `cooldown` and `kvstore` for persistence, `reactions` for ordered reaction placement, `consumer` for the discord transport, and `rules` for the stock handler units. See `cmd/ember` for a daemon built on this package.
package dispatch
