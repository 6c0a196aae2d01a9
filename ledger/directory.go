package ledger

import (
	"context"
	"sort"
)

// CityMatcher decides whether a client's city matches a query.
type CityMatcher func(clientCity, query string) bool

// ExactCity is the default matcher: exact, case-sensitive.
func ExactCity(clientCity, query string) bool { return clientCity == query }

// Directory is the read-only client catalog.
type Directory struct {
	Store     ClientStore
	MatchCity CityMatcher
}

func NewDirectory(store ClientStore, match CityMatcher) *Directory {
	if match == nil {
		match = ExactCity
	}
	return &Directory{Store: store, MatchCity: match}
}

// All returns every client ordered by ascending number.
func (d *Directory) All(ctx context.Context) ([]Client, error) {
	clients, err := d.Store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(clients, func(i, j int) bool { return clients[i].Number < clients[j].Number })
	return clients, nil
}

func (d *Directory) ByNumber(ctx context.Context, number ClientNumber) (Client, error) {
	return d.Store.GetClient(ctx, number)
}

// ByCity returns the clients whose city matches. No match is an empty
// result, not an error.
func (d *Directory) ByCity(ctx context.Context, city string) ([]Client, error) {
	clients, err := d.All(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]Client, 0)
	for _, c := range clients {
		if d.MatchCity(c.City, city) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}
