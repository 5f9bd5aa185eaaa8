package reactions

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Maps symbol names to custom server emoji, caching each server's emoji list for a fixed TTL.
type Resolver struct {
	Reactor Reactor
	cache   *expirable.LRU[string, []Emoji]
}

func NewResolver(reactor Reactor, capacity int, ttl time.Duration) *Resolver {
	return &Resolver{
		Reactor: reactor,
		cache:   expirable.NewLRU[string, []Emoji](capacity, nil, ttl),
	}
}

// Finds a custom emoji by exact name. Returns nil if the server has none with that name.
func (r *Resolver) Lookup(ctx context.Context, guildID, name string) (*Emoji, error) {
	if guildID == "" {
		return nil, nil
	}
	emojis, ok := r.cache.Get(guildID)
	if !ok {
		var err error
		emojis, err = r.Reactor.GuildEmojis(ctx, guildID)
		if err != nil {
			return nil, err
		}
		r.cache.Add(guildID, emojis)
	}
	for _, e := range emojis {
		if e.Name == name {
			return &e, nil
		}
	}
	return nil, nil
}

// Returns the API form for a symbol: the matching custom emoji if the server has one, otherwise the symbol itself as a generic emoji. On lookup failure, the generic form is returned alongside the error.
func (r *Resolver) Resolve(ctx context.Context, guildID, symbol string) (string, error) {
	e, err := r.Lookup(ctx, guildID, symbol)
	if err != nil {
		return symbol, err
	}
	if e == nil {
		return symbol, nil
	}
	return e.APIName(), nil
}

// Drops the cached emoji list for a server, eg after an emoji update event.
func (r *Resolver) Purge(guildID string) {
	r.cache.Remove(guildID)
}
