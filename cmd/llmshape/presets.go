package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/internal/extract"
	"github.com/jackzampolin/llmshape/internal/presets"
)

var citiesCount int

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "Ask the backend for a list of cities and their countries",
	Long: `Generate a list of cities with their countries.

The reply must match {cities: [{name, country}]}.

Examples:
  llmshape cities
  llmshape cities --count 10 --backend openai
  llmshape cities --mode schema_instruction -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if citiesCount <= 0 {
			return fmt.Errorf("--count must be positive")
		}
		ctx := cmd.Context()

		rt, err := setupRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, resolved, err := presets.Cities.UserPrompt(rt.services.Prompts, presets.CitiesData{Count: citiesCount})
		if err != nil {
			return err
		}
		ex, err := rt.extractor(recordOptions(resolved))
		if err != nil {
			return err
		}

		res, err := extract.ExtractWithRetry[presets.CityList](ctx, ex, extract.NewRequest(presets.Cities.Schema, user), retryPolicy())
		if err != nil {
			return err
		}
		return api.Output(res.Value)
	},
}

var petsCmd = &cobra.Command{
	Use:   "pets [text | -]",
	Short: "Extract pet records from free text",
	Long: `Extract pets (name, animal, age, and optionally color and favorite toy)
from a description. Without arguments a built-in sample text is used; "-"
reads the text from stdin.

Examples:
  llmshape pets
  llmshape pets "Mochi is a 2 year old grey cat who chases laser pointers"
  cat notes.txt | llmshape pets -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := petsText(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		rt, err := setupRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, resolved, err := presets.Pets.UserPrompt(rt.services.Prompts, presets.PetsData{Text: text})
		if err != nil {
			return err
		}
		ex, err := rt.extractor(recordOptions(resolved))
		if err != nil {
			return err
		}

		res, err := extract.ExtractWithRetry[presets.PetList](ctx, ex, extract.NewRequest(presets.Pets.Schema, user), retryPolicy())
		if err != nil {
			return err
		}
		return api.Output(res.Value)
	},
}

// petsText picks the input text: args, stdin for "-", or the sample.
func petsText(stdin io.Reader, args []string) (string, error) {
	switch {
	case len(args) == 0:
		return presets.SamplePetText(), nil
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("no text on stdin")
		}
		return text, nil
	default:
		return strings.Join(args, " "), nil
	}
}

func init() {
	citiesCmd.Flags().IntVar(&citiesCount, "count", presets.DefaultCityCount, "Number of cities to ask for")

	rootCmd.AddCommand(citiesCmd)
	rootCmd.AddCommand(petsCmd)
}
