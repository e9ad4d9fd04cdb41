package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVoiceParams_WithDefaults(t *testing.T) {
	v := VoiceParams{Voice: "en-US-JennyNeural"}.WithDefaults()
	assert.Equal(t, "chat", v.Style)
	assert.Equal(t, "+3%", v.Rate)
	assert.Equal(t, "en-US-JennyNeural", v.Voice)
}

func TestVoiceParams_WithDefaults_DoesNotOverrideSetValues(t *testing.T) {
	v := VoiceParams{Voice: "en-US-JennyNeural", Style: "cheerful", Rate: "-10%"}.WithDefaults()
	assert.Equal(t, "cheerful", v.Style)
	assert.Equal(t, "-10%", v.Rate)
}

func TestBuildSSML_EscapesSpecialCharacters(t *testing.T) {
	voice := VoiceParams{Voice: "en-US-JennyNeural"}.WithDefaults()
	ssml := buildSSML(`Tom & Jerry said "hi" <there>`, "en-US", voice)

	assert.Contains(t, ssml, `xml:lang="en-US"`)
	assert.Contains(t, ssml, `<voice name="en-US-JennyNeural">`)
	assert.Contains(t, ssml, `style="chat"`)
	assert.Contains(t, ssml, `rate="+3%"`)
	assert.Contains(t, ssml, "Tom &amp; Jerry said &quot;hi&quot; &lt;there&gt;")
	assert.NotContains(t, ssml, "<there>")
}

func TestEscapeSSML(t *testing.T) {
	assert.Equal(t, "a &amp; b &lt;c&gt; &quot;d&quot;", escapeSSML(`a & b <c> "d"`))
}
