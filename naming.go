package fluent

import (
	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// rules pluralizes entity names: a trailing consonant+"y" becomes
// "ies", everything else gets an "s".
var rules = func() *inflect.Ruleset {
	rs := inflect.NewRuleset()
	for _, c := range "bcdfghjklmnpqrstvwxz" {
		rs.AddPlural(string(c)+"y", string(c)+"ies")
	}
	return rs
}()

// EntityName returns the default entity name for a Go type name:
// "Category" => "categories", "User" => "users".
func EntityName(typeName string) string {
	if typeName == "" {
		return ""
	}
	return rules.Pluralize(cases.Lower(language.Und).String(typeName))
}

// EntityNamer is implemented by models that override their entity name.
type EntityNamer interface {
	EntityName() string
}
