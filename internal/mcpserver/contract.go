package mcpserver

import "github.com/starford/creolewiki/internal/wiki"

// MarkupHelpURI is the resource URI of the markup guide.
const MarkupHelpURI = "creolewiki://markup-help"

// MarkupGuide describes how pages are keyed and written. It is followed by
// the wiki's own help page as a worked example.
const MarkupGuide = `# creolewiki markup guide

Pages are stored as raw WikiCreole markup under a key.

## Keys

- The empty key "" is the home page.
- Other keys are '/'-separated segments, e.g. "recipes/soup". Segments may not
  be empty, "." or "..".
- The key "help" is reserved and read-only.

## Writing

- Writing empty content deletes the page.
- Pass if_match (the checksum returned by read_page) to avoid overwriting a
  concurrent change.

## Markup

- "== Title" is the top heading; each extra '=' goes one level deeper.
- **bold**, //italic//, \\ forces a line break, ---- is a horizontal rule.
- "* item" and "# item" start bullet and numbered lists; repeat the marker to
  nest ("**", "*#").
- [[other page]] and [[other page|label]] link inside the wiki;
  [[https://example.com|label]] links out.
- {{image.png|caption}} embeds an image.
- Tables: "|=head|=head|" then "|cell|cell|".
- {{{ ... }}} on their own lines keep text unformatted.

## Example

`

// MarkupHelp is the full text served by get_markup_help.
const MarkupHelp = MarkupGuide + wiki.HelpText
