package chart

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayName turns a history key such as "sparse_categorical_accuracy" into
// the legend text "Sparse Categorical Accuracy".
func DisplayName(key string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(key))
	return cases.Title(language.English).String(strings.Join(words, " "))
}
