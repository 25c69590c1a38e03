package gateway

import (
	"context"

	"skillbridge-quiz-service/internal/domain"
)

// ProfileReader resolves a user's profile: the chain gateway holds the
// content id, the IPFS gateway holds the document. Both hops are
// best-effort from the caller's perspective.
type ProfileReader struct {
	chain *ChainClient
	ipfs  *IPFSClient
}

func NewProfileReader(chain *ChainClient, ipfs *IPFSClient) *ProfileReader {
	return &ProfileReader{chain: chain, ipfs: ipfs}
}

func (r *ProfileReader) Profile(ctx context.Context, userAddress string) (domain.Profile, bool, error) {
	cid, err := r.chain.ProfileCID(ctx, userAddress)
	if err != nil {
		return domain.Profile{}, false, err
	}
	if cid == "" {
		return domain.Profile{}, false, nil
	}

	var profile domain.Profile
	if err := r.ipfs.FetchJSON(ctx, cid, &profile); err != nil {
		return domain.Profile{}, false, err
	}
	return profile, true, nil
}
