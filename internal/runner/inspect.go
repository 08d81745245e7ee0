package runner

import (
	"fmt"

	"userapi_tester/internal/model"
)

// FindDuplicateEmails returns every email value that occurs more than once,
// each reported once, in order of first appearance. A missing or null email
// counts as the value null, so two users without one are a duplicate.
// Entries that are not objects are ignored.
func FindDuplicateEmails(users []any) []string {
	counts := make(map[string]int, len(users))
	order := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok := model.AsObject(u); !ok {
			continue
		}
		v, _ := model.Field(u, "email")
		email, ok := v.(string)
		if !ok {
			email = model.Format(v)
		}
		if counts[email] == 0 {
			order = append(order, email)
		}
		counts[email]++
	}

	dups := make([]string, 0)
	for _, email := range order {
		if counts[email] > 1 {
			dups = append(dups, email)
		}
	}
	return dups
}

// FindInvalidAges describes every user whose age is missing or not an
// integer, e.g. `ID 7: "thirty" (string)`.
func FindInvalidAges(users []any) []string {
	invalid := make([]string, 0)
	for i, u := range users {
		age, ok := model.Field(u, "age")
		if ok && model.IsInteger(age) {
			continue
		}

		ref := fmt.Sprintf("#%d", i)
		if id, found := model.Field(u, "id"); found {
			ref = model.PathSegment(id)
		}
		if !ok {
			invalid = append(invalid, fmt.Sprintf("ID %s: missing", ref))
			continue
		}
		invalid = append(invalid, fmt.Sprintf("ID %s: %s (%s)", ref, model.Format(age), model.KindOf(age)))
	}
	return invalid
}
