package presets

import (
	_ "embed"

	"github.com/jackzampolin/llmshape/internal/schema"
)

//go:embed cities_user.tmpl
var citiesPrompt string

// DefaultCityCount is how many cities the default prompt asks for.
const DefaultCityCount = 5

// City is a city with its country.
type City struct {
	Name    string `json:"name" yaml:"name"`
	Country string `json:"country" yaml:"country"`
}

// CityList is the typed result of the cities preset.
type CityList struct {
	Cities []City `json:"cities" yaml:"cities"`
}

// CitiesData is the cities prompt template input.
type CitiesData struct {
	Count int
}

// CitySchema describes {cities: [{name, country}]}.
var CitySchema = schema.Register(
	schema.New("city_list",
		schema.ArrayOf("cities", schema.Obj("city",
			schema.Str("name").Describe("City name"),
			schema.Str("country").Describe("Country the city is in"),
		)),
	).WithDescription("A list of cities and the countries they belong to"),
)

// Cities lists cities from around the world.
var Cities = &Preset{
	Name:        "cities",
	Description: "List cities from around the world and their countries",
	Schema:      CitySchema,
	PromptKey:   "presets.cities.user",
	prompt:      citiesPrompt,
}
