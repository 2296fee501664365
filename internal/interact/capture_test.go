package interact

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/specter-cli/internal/artifacts"
)

const answerPage = `<html><body>
<nav>site chrome</nav>
<div class="answer">older answer</div>
<div class="answer">
  <p>Paris is the capital.</p>
  <a href="https://en.wikipedia.org/wiki/Paris">Paris  </a>
  <a href="javascript:void(0)">ignore me</a>
  <img src="https://img.test/eiffel.png" alt="Eiffel Tower">
  <img src="data:image/png;base64,AAAA" alt="inline">
</div>
</body></html>`

func TestExtractResponse_SelectorRegion(t *testing.T) {
	captured, err := extractResponse(answerPage, ".answer")
	require.NoError(t, err)

	// The last selector match is the newest answer.
	assert.Equal(t, "Paris is the capital.\nParis\nignore me", captured.Text)

	wantLinks := []artifacts.Link{{Title: "Paris", URL: "https://en.wikipedia.org/wiki/Paris"}}
	if diff := cmp.Diff(wantLinks, captured.Links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}

	wantImages := []artifacts.Image{{Alt: "Eiffel Tower", URL: "https://img.test/eiffel.png"}}
	if diff := cmp.Diff(wantImages, captured.Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}

	assert.False(t, captured.Timestamp.IsZero())
}

func TestExtractResponse_FallbackToMainThenBody(t *testing.T) {
	withMain := `<html><body><header>x</header><main> main text </main></body></html>`
	captured, err := extractResponse(withMain, "")
	require.NoError(t, err)
	assert.Equal(t, "main text", captured.Text)

	// Selector misses fall back rather than fail.
	captured, err = extractResponse(`<html><body>just body</body></html>`, ".missing")
	require.NoError(t, err)
	assert.Equal(t, "just body", captured.Text)
}

func TestExtractResponse_EmptyIsError(t *testing.T) {
	_, err := extractResponse(`<html><body><main>   </main></body></html>`, "")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestExtractResponse_IgnoresTimestampInComparisons(t *testing.T) {
	a, err := extractResponse(answerPage, ".answer")
	require.NoError(t, err)
	b, err := extractResponse(answerPage, ".answer")
	require.NoError(t, err)

	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(CapturedResponse{}, "Timestamp")); diff != "" {
		t.Errorf("extraction is not deterministic (-a +b):\n%s", diff)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "  first line  \n\n\n   \n second line \n\n"
	assert.Equal(t, "first line\n\nsecond line", normalizeWhitespace(in))
}
