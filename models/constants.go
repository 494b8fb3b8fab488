package models

// Event types
const (
	EventTypeInitialState = "initial_state"
	EventTypeSnapshot     = "snapshot"
	EventTypeRoomClosed   = "room_closed"
)

// ScaleType selects the permitted vote-value set for a room
type ScaleType string

// Available scales
const (
	ScaleFibonacci         ScaleType = "fibonacci"
	ScaleModifiedFibonacci ScaleType = "modified-fibonacci"
	ScaleTShirt            ScaleType = "t-shirt"
)

// Special cards allowed on every scale
const (
	CardQuestion = "?"
	CardCoffee   = "☕"
)

var decks = map[ScaleType][]string{
	ScaleFibonacci:         {"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", CardQuestion, CardCoffee},
	ScaleModifiedFibonacci: {"0", "½", "1", "2", "3", "5", "8", "13", "20", "40", "100", CardQuestion, CardCoffee},
	ScaleTShirt:            {"XS", "S", "M", "L", "XL", "XXL", CardQuestion, CardCoffee},
}

// Deck returns the card values permitted under the given scale.
func Deck(scale ScaleType) []string {
	return decks[scale]
}

// ValidScale reports whether the given scale is one of the known decks.
func ValidScale(scale ScaleType) bool {
	_, ok := decks[scale]
	return ok
}

// ValidVote reports whether value belongs to the scale's deck.
func ValidVote(scale ScaleType, value string) bool {
	for _, card := range decks[scale] {
		if card == value {
			return true
		}
	}
	return false
}
