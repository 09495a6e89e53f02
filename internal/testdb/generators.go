package testdb

import (
	"pgregory.net/rapid"
)

// ArbitraryString generates aggressive strings: empty, null bytes, Unicode,
// control characters, injection attempts and regex metacharacters.
func ArbitraryString() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.Just("\x00"),
		rapid.Just("test\x00test"),
		rapid.StringMatching(`[a-zA-Z0-9 ]{0,100}`),
		rapid.StringMatching(`[\x01-\x1F]{1,10}`),
		arbitraryInjection(),
		arbitraryPatternSyntax(),
		arbitraryUnicode(),
		arbitraryWhitespace(),
	)
}

// ArbitraryNoteTitle generates titles with at least one non-space character.
func ArbitraryNoteTitle() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9 ]{0,99}`),
		arbitraryInjection(),
		arbitraryPatternSyntax(),
		arbitraryUnicode(),
	)
}

// ArbitraryNoteContent generates content for property testing.
// Can be empty or contain any characters.
func ArbitraryNoteContent() *rapid.Generator[string] {
	return ArbitraryString()
}

// ArbitrarySearchTerm generates search terms that must be matched literally.
func ArbitrarySearchTerm() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-zA-Z]{1,10}`),
		arbitraryInjection(),
		arbitraryPatternSyntax(),
		arbitraryUnicode(),
	)
}

// BlankTitle generates titles that must be rejected.
func BlankTitle() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{"", " ", "   ", "\t", "\n", " \t \n ", "\r\n"})
}

// ArbitraryTags generates an optional tag list.
func ArbitraryTags() *rapid.Generator[[]string] {
	return rapid.OneOf(
		rapid.Just([]string(nil)),
		rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,12}`), 1, 5),
	)
}

func arbitraryInjection() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`' OR 1=1 --`,
		`'; DROP TABLE notes; --`,
		`" OR "1"="1`,
		`{"$ne": null}`,
		`$where`,
		`'; DELETE note; --`,
		`<script>alert('xss')</script>`,
	})
}

// arbitraryPatternSyntax generates LIKE/regex metacharacters that a literal
// contains-match must not interpret.
func arbitraryPatternSyntax() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`.*`,
		`%`,
		`_`,
		`a%b`,
		`^test`,
		`test$`,
		`(test`,
		`[a-z]`,
		`\`,
		`\d+`,
		`a|b`,
		`?`,
		`+`,
	})
}

func arbitraryUnicode() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"日本語",
		"中文测试",
		"العربية",
		"🔥🎉💻🚀",
		"emoji🔥in🎉middle",
		"Ñoño",
		"Zürich",
		"Москва",
		"Ελληνικά",
		"한국어",
		"à",
		"test space",
		"math∑∏∫",
	})
}

func arbitraryWhitespace() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		" ",
		"\t",
		"\n",
		"\r\n",
		"  test  ",
		"line1\nline2",
		" ",
		"　",
	})
}
