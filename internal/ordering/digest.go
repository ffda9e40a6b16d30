package ordering

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

const prefixDomain = "crmcore/order-prefix/v1"

// PrefixDigests returns the chained digest of every prefix of ordered:
// element n fingerprints ordered[:n], so the slice has len(ordered)+1 entries.
func PrefixDigests(ordered []events.Event) []string {
	return ExtendDigests(nil, ordered)
}

// ExtendDigests continues digests, the prefix digests of ordered[:len(digests)-1],
// over the rest of ordered. A nil digests starts from the empty prefix.
func ExtendDigests(digests []string, ordered []events.Event) []string {
	if len(digests) == 0 {
		digests = []string{hex.EncodeToString(chain(nil, []byte(prefixDomain)))}
	}
	if len(digests) > len(ordered)+1 {
		digests = digests[:len(ordered)+1]
	}
	extended := make([]string, len(digests), len(ordered)+1)
	copy(extended, digests)

	current, err := hex.DecodeString(extended[len(extended)-1])
	if err != nil {
		return PrefixDigests(ordered)
	}
	for _, event := range ordered[len(extended)-1:] {
		current = chain(current, []byte(event.ID))
		extended = append(extended, hex.EncodeToString(current))
	}
	return extended
}

func chain(previous, data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(previous)
	hasher.Write([]byte{0x00})
	hasher.Write(data)
	return hasher.Sum(nil)
}

// CommonPrefix returns the length of the longest shared prefix of two orders, compared by event id.
func CommonPrefix(left, right []events.Event) int {
	limit := min(len(left), len(right))
	for index := 0; index < limit; index++ {
		if left[index].ID != right[index].ID {
			return index
		}
	}
	return limit
}
