// Package testhelpers provides fixtures and containers for testing resource-engine components.
package testhelpers

import (
	"testing"

	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// FilmQuery selects the flat film resource.
const FilmQuery = "SELECT film.film_id, film.title, film.release_year AS year, film_rating.stars " +
	"FROM film LEFT OUTER JOIN film_rating ON film_rating.film_id = film.film_id ORDER BY film.film_id"

// LanguageFilmsQuery selects languages with their films, grouped by language.
const LanguageFilmsQuery = "SELECT language.language_id, language.name AS lang_name, " +
	"film.film_id, film.title, film.release_year AS year, film_rating.stars " +
	"FROM language LEFT OUTER JOIN film ON film.language_id = language.language_id " +
	"LEFT OUTER JOIN film_rating ON film_rating.film_id = film.film_id " +
	"ORDER BY language.language_id, film.film_id"

// FilmDefinition is a flat resource: film with a 1:1 rating extension.
func FilmDefinition() *models.Definition {
	return &models.Definition{
		Query:           FilmQuery,
		DefaultDatabase: "sakila",
		Tables: []models.TableDefinition{
			{
				Name: "film",
				Role: models.TableRoleParent,
				Columns: []models.ColumnDefinition{
					{Name: "film_id", PrimaryKey: true, Read: true},
					{Name: "title", Read: true},
					{Name: "release_year", Label: "year", Read: true},
					{Name: "language_id", NonqueriedForeignKey: true, Read: true},
				},
			},
			{
				Name: "film_rating",
				Role: models.TableRoleParentExtension,
				Columns: []models.ColumnDefinition{
					{Name: "film_id", Label: "rating_film_id", PrimaryKey: true},
					{Name: "stars", Read: true},
				},
			},
		},
	}
}

// LanguageFilmsDefinition is a hierarchical resource: language (parent) with
// films (child), each film carrying a 1:1 rating extension.
func LanguageFilmsDefinition() *models.Definition {
	return &models.Definition{
		Query:           LanguageFilmsQuery,
		DefaultDatabase: "sakila",
		Tables: []models.TableDefinition{
			{
				Name: "language",
				Role: models.TableRoleParent,
				Columns: []models.ColumnDefinition{
					{Name: "language_id", PrimaryKey: true, Read: true},
					{Name: "name", Label: "lang_name", Read: true},
				},
			},
			{
				Name: "film",
				Role: models.TableRoleChild,
				Columns: []models.ColumnDefinition{
					{Name: "film_id", PrimaryKey: true, Read: true},
					{Name: "title", Read: true},
					{Name: "release_year", Label: "year", Read: true},
					{Name: "language_id", NonqueriedForeignKey: true},
				},
			},
			{
				Name: "film_rating",
				Role: models.TableRoleChildExtension,
				Columns: []models.ColumnDefinition{
					{Name: "film_id", Label: "rating_film_id", PrimaryKey: true},
					{Name: "stars", Read: true},
				},
			},
		},
	}
}

// MustMetaData derives metadata from def, failing the test on error.
func MustMetaData(t testing.TB, def *models.Definition) *models.ResourceMetaData {
	t.Helper()
	meta, err := models.BuildMetaData(def)
	if err != nil {
		t.Fatalf("build metadata: %v", err)
	}
	return meta
}

// MustResource builds a resource handle from def, failing the test on error.
func MustResource(t testing.TB, name string, def *models.Definition) *models.Resource {
	t.Helper()
	return models.NewResource(name, def, MustMetaData(t, def))
}
