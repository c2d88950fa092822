package htmlmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertPreservesHeadings(t *testing.T) {
	c := New()
	md, err := c.Convert([]byte("<html><body><h1>Array</h1><h2>Methods</h2><p>text</p></body></html>"))
	require.NoError(t, err)
	assert.Contains(t, md, "# Array")
	assert.Contains(t, md, "## Methods")
	assert.Contains(t, md, "text")
}

func TestConvertPreservesCodeBlocks(t *testing.T) {
	c := New()
	md, err := c.Convert([]byte("<pre>a = New Array;</pre><p>inline <code>Add</code> call</p>"))
	require.NoError(t, err)
	assert.Contains(t, md, "```\na = New Array;\n```")
	assert.Contains(t, md, "`Add`")
}

func TestConvertListsAndRules(t *testing.T) {
	c := New()
	md, err := c.Convert([]byte("<ul><li>first</li><li>second</li></ul><hr/>"))
	require.NoError(t, err)
	assert.Contains(t, md, "- first")
	assert.Contains(t, md, "- second")
	assert.Contains(t, md, "---")
}

func TestConvertDropsScriptStyleAndComments(t *testing.T) {
	c := New()
	md, err := c.Convert([]byte(`<script>alert(1)</script><style>p{}</style><!-- hidden --><p>kept</p>`))
	require.NoError(t, err)
	assert.NotContains(t, md, "alert")
	assert.NotContains(t, md, "p{}")
	assert.NotContains(t, md, "hidden")
	assert.Contains(t, md, "kept")
}

func TestConvertUnescapesEntities(t *testing.T) {
	c := New()
	md, err := c.Convert([]byte("<p>a &amp; b &lt;c&gt;</p>"))
	require.NoError(t, err)
	assert.Contains(t, md, "a & b <c>")
}

func TestConvertIsPure(t *testing.T) {
	c := New()
	input := []byte("<h1>Title</h1><p>body &nbsp; text</p>")
	first, err := c.Convert(input)
	require.NoError(t, err)
	second, err := c.Convert(input)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same input always yields the same output")
}

func TestConvertCollapsesWhitespace(t *testing.T) {
	c := New()
	md, err := c.Convert([]byte("<p>a</p>\n\n\n\n<p>b</p>"))
	require.NoError(t, err)
	assert.NotContains(t, md, "\n\n\n")
	assert.False(t, strings.HasSuffix(md, "\n"))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Array", ExtractTitle([]byte("<h1>Array</h1>")))
	assert.Equal(t, "Map", ExtractTitle([]byte("<h2><b>Map</b></h2>")))
	assert.Equal(t, "", ExtractTitle([]byte("<p>no headings</p>")))
}
