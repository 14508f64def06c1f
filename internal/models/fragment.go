package models

import "strings"

// Category is a statistics granularity produced by the analysis engine.
type Category string

const (
	CategoryWords      Category = "words"
	CategorySentences  Category = "sentences"
	CategoryParagraphs Category = "paragraphs"
	CategoryDocument   Category = "document"
)

// Categories lists every category in aggregation order.
var Categories = []Category{
	CategoryWords,
	CategoryParagraphs,
	CategorySentences,
	CategoryDocument,
}

// ParseCategory returns the category with the given name.
func ParseCategory(name string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == strings.ToLower(name) {
			return c, true
		}
	}
	return "", false
}

// Suffix is the file name suffix shared by all fragments of the category.
func (c Category) Suffix() string {
	return "." + string(c) + ".csv"
}

// TotalName is the file name of the category's aggregate.
func (c Category) TotalName() string {
	return "total" + c.Suffix()
}

// TableName is the results database table holding the category's totals.
func (c Category) TableName() string {
	return "total_" + string(c)
}

// DocumentName strips the category suffix from a fragment file name.
func (c Category) DocumentName(fragment string) string {
	return strings.TrimSuffix(fragment, c.Suffix())
}
