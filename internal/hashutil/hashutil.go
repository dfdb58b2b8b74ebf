// Package hashutil implements the fingerprint hashing and tokenization shared
// by the filter builder and the request matcher.  Every identity comparison
// in the engine — token buckets, domain sets, filter IDs — goes through a
// [Hash] rather than a string, so this package is on the hot path of every
// match.
package hashutil

// Hash is a 64-bit fingerprint of a string.  Two equal strings always
// produce equal hashes; collisions between distinct strings are accepted as
// the cost of avoiding string comparisons on the match path.
type Hash uint64

// Max is the identity element for an AND-fold of a non-empty hash set, used
// to compute quick-rejection unions over domain sets.
const Max Hash = ^Hash(0)

// seed is the initial accumulator value for [fastHash], matching the
// multiplicative-hash construction used for both plain tokens and filter
// IDs (see [FilterIDSeed]).
const seed Hash = 5381

// FilterIDSeed derives the seed used by [rules.NetworkFilter.ID] from the
// filter's option mask, so that two filters with different masks never
// collide on ID by construction alone.
func FilterIDSeed(mask uint32) Hash {
	return fastHash("", Hash(5408*33)^Hash(mask))
}

// FastHash computes the fingerprint of s.
func FastHash(s string) Hash {
	return fastHash(s, seed)
}

// MixString continues the multiplicative mix used by [FastHash] from an
// existing accumulator, letting a filter ID fold several heterogeneous
// fields (mask, pattern, hostname, domain hashes) into one hash without
// building an intermediate string.
func MixString(acc Hash, s string) Hash {
	return fastHash(s, acc)
}

// MixHash folds an already-computed hash into acc using the same
// byte-at-a-time mix, applied over h's 8 bytes, most significant first.
func MixHash(acc Hash, h Hash) Hash {
	for shift := 56; shift >= 0; shift -= 8 {
		acc = acc*33 ^ Hash(byte(h>>uint(shift)))
	}

	return acc
}

// fastHash runs the djb2-style multiplicative mix over s starting from acc.
// hash = hash*33 XOR byte, applied left to right.
func fastHash(s string, acc Hash) Hash {
	h := acc
	for i := 0; i < len(s); i++ {
		h = h*33 ^ Hash(s[i])
	}

	return h
}

// badTokens are treated as globally common: their histogram count is forced
// to the total token count so they are never picked as a filter's best
// token.
var badTokens = []string{"http", "https", "www", "com"}

// BadTokens returns the hashes of the globally common tokens.
func BadTokens() []Hash {
	hashes := make([]Hash, len(badTokens))
	for i, t := range badTokens {
		hashes[i] = FastHash(t)
	}

	return hashes
}

// isTokenChar reports whether b may appear inside a token: ASCII
// alphanumeric or '%', matching the alphabet the builder and matcher must
// agree on.
func isTokenChar(b byte) bool {
	return (b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9') ||
		b == '%'
}

// Tokenize splits s on runs outside [isTokenChar], hashing every run of
// length two or more.  Input is not lowercased here; callers that need
// case-insensitive tokens must lowercase s first.
func Tokenize(s string) []Hash {
	return tokenizeInto(nil, s, false, false)
}

// TokenizeFilter is the build-time variant used on a filter's pattern to
// avoid emitting tokens that straddle an anchor boundary.  skipFirst drops
// a token that starts at offset 0; skipLast drops a token that ends at
// len(s).
func TokenizeFilter(s string, skipFirst, skipLast bool) []Hash {
	return tokenizeInto(nil, s, skipFirst, skipLast)
}

// AppendTokenize tokenizes s into dst, reusing dst's backing array.  It is
// the allocation-conscious entry point used on the request-matching hot
// path (mirrors the pooled-buffer pattern of the tokenizer being ported).
func AppendTokenize(dst []Hash, s string) []Hash {
	return tokenizeInto(dst[:0], s, false, false)
}

func tokenizeInto(dst []Hash, s string, skipFirst, skipLast bool) []Hash {
	n := len(s)
	i := 0
	for i < n {
		for i < n && !isTokenChar(s[i]) {
			i++
		}

		start := i
		for i < n && isTokenChar(s[i]) {
			i++
		}

		if i-start < 2 {
			continue
		}

		if skipFirst && start == 0 {
			continue
		}

		if skipLast && i == n {
			continue
		}

		dst = append(dst, FastHash(s[start:i]))
	}

	return dst
}
