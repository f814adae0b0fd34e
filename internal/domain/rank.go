package domain

// RankTier is a named step of the rank ladder.
type RankTier struct {
	Level    int    `json:"level"`
	Name     string `json:"name"`
	MinScore int    `json:"minScore"`
}

// RankTiers is ordered by ascending MinScore; Level is the tier order.
var RankTiers = []RankTier{
	{Level: 0, Name: "Novato Temporal", MinScore: 0},
	{Level: 1, Name: "Viajero Cadete", MinScore: 100},
	{Level: 2, Name: "Técnico Avanzado", MinScore: 250},
	{Level: 3, Name: "Operador de Élite", MinScore: 500},
	{Level: 4, Name: "Maestro Chronotech", MinScore: 1000},
}

// RankOf returns the highest tier whose threshold score reaches.
func RankOf(score int) RankTier {
	tier := RankTiers[0]
	for _, t := range RankTiers[1:] {
		if score < t.MinScore {
			break
		}
		tier = t
	}
	return tier
}
