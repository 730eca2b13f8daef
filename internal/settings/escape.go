package settings

import "strings"

// escapeAttr escapes a string for use inside an XML attribute value. All five
// reserved characters are covered so either quote style stays valid.
var escapeAttr = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
).Replace

// unescapeAttr reverses escapeAttr for the read model. &amp; is handled last
// so already-unescaped entities are not double-expanded.
var unescapeAttr = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
).Replace
