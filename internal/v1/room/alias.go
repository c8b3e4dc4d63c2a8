package room

import (
	"strings"

	"github.com/peergrid/signaling/internal/v1/protocol"
)

// Alias length bounds after normalization.
const (
	aliasMinLen = 2
	aliasMaxLen = 32
)

// NormalizeAlias lowercases and validates a requested alias. Valid aliases
// are 2-32 characters from [a-z0-9_.-] and start with a letter or digit.
func NormalizeAlias(raw string) (string, bool) {
	alias := strings.ToLower(strings.TrimSpace(raw))
	if len(alias) < aliasMinLen || len(alias) > aliasMaxLen {
		return "", false
	}
	for i := 0; i < len(alias); i++ {
		c := alias[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case i > 0 && (c == '_' || c == '.' || c == '-'):
		default:
			return "", false
		}
	}
	return alias, true
}

// claimAlias binds a normalized alias to the peer. Re-claiming the alias the
// peer already holds is a no-op success; claiming a fresh one releases the
// previous binding. An alias held by any other peer, connected or detached,
// stays taken until garbage collection frees it.
func (r *Room) claimAlias(p *Peer, raw, requestID string) *protocol.ErrorFrame {
	alias, ok := NormalizeAlias(raw)
	if !ok {
		frame := protocol.NewError(protocol.CodeAliasInvalid, "alias must be 2-32 chars of [a-z0-9_.-] starting with a letter or digit", requestID)
		return &frame
	}

	if holder, taken := r.aliases[alias]; taken {
		if holder == p.PeerID {
			return nil
		}
		frame := protocol.NewError(protocol.CodeAliasTaken, "alias is already claimed in this room", requestID)
		return &frame
	}

	if p.Alias != "" {
		delete(r.aliases, p.Alias)
	}
	p.Alias = alias
	r.aliases[alias] = p.PeerID
	return nil
}

// releaseAlias drops the binding if the peer still holds it.
func (r *Room) releaseAlias(p *Peer) {
	if p.Alias != "" && r.aliases[p.Alias] == p.PeerID {
		delete(r.aliases, p.Alias)
	}
}
