// Package filtering decides which discovered projects enter the catalog.
//
// Two rule sets are applied to every item, and an item must pass both:
//
//   - Names: glob patterns matched against the lowercased "owner/name" of the
//     repository. '*' also matches across the slash, so "acme/*" and
//     "*-experimental" both work.
//   - Topics: exact, case-insensitive topic tags.
//
// Within a rule set, exclude takes precedence over include. With include
// rules present an item must match at least one of them; with only exclude
// rules, anything not excluded passes; with no rules everything passes.
//
// # Usage Example
//
//	f, err := filtering.New(filtering.Config{
//		Names: &filtering.Rules{
//			Include: []string{"modelcontextprotocol/*", "*mcp*"},
//			Exclude: []string{"*-archive"},
//		},
//		Topics: &filtering.Rules{Exclude: []string{"deprecated"}},
//	})
//	if err != nil {
//		return err
//	}
//	items = f.Apply(ctx, items)
package filtering
