package presets

import (
	_ "embed"
	"strings"

	"github.com/jackzampolin/llmshape/internal/schema"
)

//go:embed pets_user.tmpl
var petsPrompt string

//go:embed pets_sample.txt
var petsSample string

// Pet is one extracted pet record. Color and FavoriteToy are nil when the
// text does not mention them.
type Pet struct {
	Name        string  `json:"name" yaml:"name"`
	Animal      string  `json:"animal" yaml:"animal"`
	Age         int     `json:"age" yaml:"age"`
	Color       *string `json:"color" yaml:"color"`
	FavoriteToy *string `json:"favorite_toy" yaml:"favorite_toy"`
}

// PetList is the typed result of the pets preset.
type PetList struct {
	Pets []Pet `json:"pets" yaml:"pets"`
}

// PetsData is the pets prompt template input.
type PetsData struct {
	Text string
}

// SamplePetText is the description used when no text is given.
func SamplePetText() string {
	return strings.TrimSpace(petsSample)
}

// PetSchema describes {pets: [{name, animal, age, color?, favorite_toy?}]}.
var PetSchema = schema.Register(
	schema.New("pet_list",
		schema.ArrayOf("pets", schema.Obj("pet",
			schema.Str("name"),
			schema.Str("animal").Describe("Kind of animal, e.g. cat"),
			schema.Int("age").Describe("Age in whole years"),
			schema.Str("color").Opt(),
			schema.Str("favorite_toy").Opt(),
		)),
	).WithDescription("Pets mentioned in a piece of text"),
)

// Pets extracts pet records from free text.
var Pets = &Preset{
	Name:        "pets",
	Description: "Extract pet records (name, animal, age, color, favorite toy) from free text",
	Schema:      PetSchema,
	PromptKey:   "presets.pets.user",
	prompt:      petsPrompt,
}
