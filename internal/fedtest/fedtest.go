// Package fedtest holds subgraph fixtures shared by package tests.
package fedtest

import (
	"testing"

	composer "github.com/hanpama/fedgraph/internal/composer"
	registry "github.com/hanpama/fedgraph/internal/registry"
)

const UsersSDL = `
type Query {
  user(id: ID!): User
  users: [User!]!
}

type User @key(fields: "id") {
  id: ID!
  name: String
  email: String
}
`

const ProductsSDL = `
type Query {
  products(userId: ID!): [Product!]!
}

type Product @key(fields: "id") {
  id: ID!
  name: String
  userId: ID!
}

extend type User @key(fields: "id") {
  id: ID! @external
  products: [Product!]!
}
`

// ReviewsSDL extends Product with a field that needs Product.name.
const ReviewsSDL = `
type Review {
  body: String!
  rating: Int!
}

extend type Product @key(fields: "id") {
  id: ID! @external
  name: String @external
  reviews: [Review!]!
  summary: String @requires(fields: "name")
}

type Mutation {
  addReview(productId: ID!, body: String!): Review
}
`

// Subgraphs parses name/SDL pairs. URLs are http://<name>.
func Subgraphs(t testing.TB, sdls map[string]string) []*registry.SubgraphSchema {
	t.Helper()
	var out []*registry.SubgraphSchema
	for name, sdl := range sdls {
		s, err := registry.Parse(name, "http://"+name, sdl)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		out = append(out, s)
	}
	return out
}

// Compose parses and composes the given subgraphs, failing the test on
// any error.
func Compose(t testing.TB, sdls map[string]string) *composer.Supergraph {
	t.Helper()
	g, err := composer.Compose(Subgraphs(t, sdls))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return g
}

// UsersProducts is the two-service graph used across tests.
func UsersProducts(t testing.TB) *composer.Supergraph {
	return Compose(t, map[string]string{"users": UsersSDL, "products": ProductsSDL})
}

// WithReviews adds the reviews service to UsersProducts.
func WithReviews(t testing.TB) *composer.Supergraph {
	return Compose(t, map[string]string{"users": UsersSDL, "products": ProductsSDL, "reviews": ReviewsSDL})
}
