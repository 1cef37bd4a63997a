package pipeline

import "github.com/sells-group/prospector/internal/model"

// MergeContacts picks each contact field from the first candidate set that
// has it. Callers pass candidates in precedence order: research-text regex
// matches, then matches from text already on the record, then what the model
// claims in its contact block, then regex matches over the model output. A field nil in every candidate stays nil, and the
// store keeps whatever value the record already holds for it.
func MergeContacts(candidates ...model.Contacts) model.Contacts {
	var out model.Contacts
	for _, c := range candidates {
		out.Phone = firstNonNil(out.Phone, c.Phone)
		out.Email = firstNonNil(out.Email, c.Email)
		out.Facebook = firstNonNil(out.Facebook, c.Facebook)
		out.Instagram = firstNonNil(out.Instagram, c.Instagram)
	}
	return out
}

func firstNonNil(current, next *string) *string {
	if current != nil && *current != "" {
		return current
	}
	if next != nil && *next != "" {
		return next
	}
	return nil
}
