package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klppl/apfed/internal/activitypub"
	"github.com/klppl/apfed/internal/idurl"
)

// NotAnActorError is returned by FetchActor when the fetched document does
// not classify as Actor, per spec.md §4.6 ("fetch_actor = fetch_object then
// classify as Actor else fail").
type NotAnActorError struct {
	URL string
	Got activitypub.CoreType
}

func (e *NotAnActorError) Error() string {
	return fmt.Sprintf("fetch_actor: %s classified as %s, not Actor", e.URL, e.Got)
}

// FetchActor implements fetch_actor(url) from spec.md §4.6: fetch_object
// followed by Actor classification and the actor-specific validation rules
// (key owner canonicality, alias dedup, count limits).
func (f *Fetcher) FetchActor(ctx context.Context, rawURL string, opts Options) (activitypub.ValidatedActor, map[string]interface{}, error) {
	doc, err := f.FetchObject(ctx, rawURL, opts)
	if err != nil {
		return activitypub.ValidatedActor{}, nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return activitypub.ValidatedActor{}, nil, fmt.Errorf("fetch_actor: re-marshal: %w", err)
	}

	if got := activitypub.Classify(raw); got != activitypub.TypeActor {
		return activitypub.ValidatedActor{}, nil, &NotAnActorError{URL: rawURL, Got: got}
	}

	validated, err := activitypub.ValidateActor(raw)
	if err != nil {
		return activitypub.ValidatedActor{}, nil, fmt.Errorf("fetch_actor: %w", err)
	}
	return validated, doc, nil
}

// FetchCollection implements fetch_collection(url, max_pages) from
// spec.md §4.6: pages via first/next up to maxPages, each page's origin
// must match the collection's origin.
func (f *Fetcher) FetchCollection(ctx context.Context, rawURL string, maxPages int, opts Options) ([]map[string]interface{}, error) {
	if maxPages <= 0 {
		maxPages = 3
	}

	collectionOrigin, err := originOf(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch_collection: %w", err)
	}

	var pages []map[string]interface{}
	next := rawURL
	seen := 0
	for next != "" && seen < maxPages {
		if err := checkOrigin(next, collectionOrigin); err != nil {
			return pages, err
		}
		page, err := f.FetchObject(ctx, next, opts)
		if err != nil {
			return pages, fmt.Errorf("fetch_collection: page %d: %w", seen, err)
		}
		pages = append(pages, page)
		seen++

		next = ""
		if seen == 1 {
			if first, ok := page["first"]; ok {
				next = stringField(first)
			}
		} else if n, ok := page["next"]; ok {
			next = stringField(n)
		}
	}
	return pages, nil
}

func stringField(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if id, ok := t["id"].(string); ok {
			return id
		}
	}
	return ""
}

func originOf(rawURL string) (idurl.Origin, error) {
	u, err := idurl.ParseHttpUrl(rawURL)
	if err != nil {
		return idurl.Origin{}, err
	}
	return u.Origin(), nil
}

func checkOrigin(rawURL string, want idurl.Origin) error {
	u, err := idurl.ParseHttpUrl(rawURL)
	if err != nil {
		return fmt.Errorf("fetch_collection: page url invalid: %w", err)
	}
	if u.Origin() != want {
		return fmt.Errorf("fetch_collection: page origin %s does not match collection origin %s", u.Origin(), want)
	}
	return nil
}
