package views

import (
	"harbor/pkg/models"
	"harbor/pkg/store"
)

// GetProfile returns the active kind-0 metadata for a pubkey. A pubkey
// with no stored profile yields an empty profile whose BestName falls
// back to a truncated key.
func GetProfile(txn *store.ReadTxn, pubkey string) models.Profile {
	addr := models.Address{Kind: models.KindProfile, Pubkey: pubkey}
	ev, err := txn.GetActiveByAddress(addr)
	if err != nil {
		return models.Profile{Pubkey: pubkey}
	}
	p, ok := models.ProfileFromEvent(ev)
	if !ok {
		return models.Profile{Pubkey: pubkey}
	}
	return p
}

// GetProfileName returns the display name for a pubkey.
func GetProfileName(txn *store.ReadTxn, pubkey string) string {
	return GetProfile(txn, pubkey).BestName()
}

// GetProfilePicture returns the avatar URL for a pubkey, or "".
func GetProfilePicture(txn *store.ReadTxn, pubkey string) string {
	return GetProfile(txn, pubkey).Picture
}
