package mint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Band assigns a content identifier to every token id up to and including
// UpTo. The last band of a resolver catches everything above it.
type Band struct {
	UpTo      uint64
	ContentID string
}

// DefaultBands are the content identifiers of the launch deployment.
var DefaultBands = []Band{
	{UpTo: 2000, ContentID: "bafybeiesbbihtfdj3kqbah5642p7drsb6hrzwzksezbgb2t2ojjwgh2k5m"},
	{UpTo: 4000, ContentID: "bafybeifclnruolpdcsouhmzhnardvpzroxk6qouc53drw4vh2f3zdoouya"},
	{UpTo: 6000, ContentID: "bafybeihbeszvaoc3exx6ji77g74nyuqmoz2scdykudna3qd6xzgygn36ra"},
	{UpTo: 8000, ContentID: "bafybeidl3uswhq65hnfvgj6bfahbvdb57y7cxiaelgct6q7raweubcms6u"},
	{ContentID: "bafybeifx2hrh6mhbpcivo4z53l76uqwc6fth4nf4qah6aow7e62lcka3d4"},
}

var errInvalidBands = errors.New("mint: invalid content bands")

// URIResolver maps token ids to immutable content identifiers.
type URIResolver struct {
	bands []Band
}

// NewURIResolver validates and freezes the band table. Bounded bands must be
// strictly increasing; the final band is unbounded and its UpTo is ignored.
func NewURIResolver(bands []Band) (*URIResolver, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: at least one band required", errInvalidBands)
	}
	frozen := make([]Band, len(bands))
	copy(frozen, bands)
	for i, band := range frozen {
		if strings.TrimSpace(band.ContentID) == "" {
			return nil, fmt.Errorf("%w: band %d has no content id", errInvalidBands, i)
		}
		frozen[i].ContentID = strings.TrimSpace(band.ContentID)
		if i == len(frozen)-1 {
			frozen[i].UpTo = 0
			continue
		}
		if i > 0 && band.UpTo <= frozen[i-1].UpTo {
			return nil, fmt.Errorf("%w: band %d bound %d not above %d", errInvalidBands, i, band.UpTo, frozen[i-1].UpTo)
		}
	}
	return &URIResolver{bands: frozen}, nil
}

// DefaultURIResolver returns the resolver over DefaultBands.
func DefaultURIResolver() *URIResolver {
	r, err := NewURIResolver(DefaultBands)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the content identifier for the token id.
func (r *URIResolver) Resolve(tokenID uint64) string {
	last := len(r.bands) - 1
	for _, band := range r.bands[:last] {
		if tokenID <= band.UpTo {
			return band.ContentID
		}
	}
	return r.bands[last].ContentID
}

// Bands returns a copy of the band table.
func (r *URIResolver) Bands() []Band {
	out := make([]Band, len(r.bands))
	copy(out, r.bands)
	return out
}

// Filename is the metadata file name of a minted token.
func Filename(length string, tokenID uint64) string {
	return length + "_" + strconv.FormatUint(tokenID, 10) + ".json"
}

// TokenURI returns the content address of the token's metadata.
func (r *URIResolver) TokenURI(length string, tokenID uint64) string {
	return "ipfs://" + r.Resolve(tokenID) + "/" + Filename(length, tokenID)
}
