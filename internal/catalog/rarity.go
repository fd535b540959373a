package catalog

// Rarity classifies items. The order matters: shop rotation picks feature
// items by rarity pool and the rarity-collector milestone walks rarities
// from lowest to highest.
type Rarity string

// Rarities from lowest to highest.
const (
	Common    Rarity = "common"
	Uncommon  Rarity = "uncommon"
	Rare      Rarity = "rare"
	Legendary Rarity = "legendary"
	Mythic    Rarity = "mythic"
	Kardec    Rarity = "kardec"
)

var rarityRank = map[Rarity]int{
	Common:    0,
	Uncommon:  1,
	Rare:      2,
	Legendary: 3,
	Mythic:    4,
	Kardec:    5,
}

// Rank returns the ordinal position of r, or -1 for unknown rarities.
func (r Rarity) Rank() int {
	rank, ok := rarityRank[r]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether r is a known rarity.
func (r Rarity) Valid() bool {
	_, ok := rarityRank[r]
	return ok
}

// Below reports whether r is strictly lower than other.
func (r Rarity) Below(other Rarity) bool {
	return r.Rank() < other.Rank()
}
