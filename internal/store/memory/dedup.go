package memory

import "golang.org/x/sync/singleflight"

// FetchDeduper collapses concurrent fetches for the same key (an actor
// or object id) into a single in-flight call, per spec.md §5: "Fetch
// requests made during signature verification are de-duplicated by key
// id through an in-flight map." Callers waiting on the same key id
// receive the same result the first caller's fetch produces.
type FetchDeduper struct {
	g singleflight.Group
}

// Do runs fn for key if no fetch for that key is already in flight,
// otherwise it waits for the in-flight fetch and returns its result.
func (d *FetchDeduper) Do(key string, fn func() (interface{}, error)) (interface{}, error) {
	v, err, _ := d.g.Do(key, fn)
	return v, err
}
