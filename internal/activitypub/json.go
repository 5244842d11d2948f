package activitypub

import "encoding/json"

func marshalDeterministic(doc map[string]interface{}) ([]byte, error) {
	return json.Marshal(doc)
}
