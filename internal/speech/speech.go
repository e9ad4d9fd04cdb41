// Package speech wraps the Azure Cognitive Services Speech SDK
// (Microsoft/cognitive-services-speech-sdk-go) behind two small
// interfaces, RecognizerEngine and SynthesizerEngine, so the rest of the
// module depends on call-shaped contracts rather than SDK types
// directly — mirroring the teacher's per-provider transformer packages
// (internal/transformer/{cartesia,azure,...}) which wrap each vendor
// SDK behind SpeechToTextTransformer/TextToSpeechTransformer.
package speech

import (
	"context"
	"fmt"
	"strings"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/rapidaai/voicecore/internal/commons"
)

// RecognizerCallbacks carries the handlers a RecognizerEngine invokes as
// speech events arrive. Registration happens before Start, per spec.md
// §4.2 ("callbacks registered before warm-up").
type RecognizerCallbacks struct {
	OnPartial func(text, lang string)
	OnFinal   func(text, lang string)
	OnError   func(err error)
}

// RecognizerEngine is a single continuous-recognition session against a
// push audio stream. Instances are pooled and reused (spec.md §4.8): a
// released instance must be Reset before its next Start.
type RecognizerEngine interface {
	// Start registers callbacks and begins continuous recognition
	// against the engine's push stream. Must be called before the
	// first PushAudio.
	Start(ctx context.Context, cb RecognizerCallbacks) error

	// PushAudio feeds one frame of 16kHz mono PCM16 audio into the
	// active push stream.
	PushAudio(frame []byte) error

	// Stop ends continuous recognition. Idempotent.
	Stop(ctx context.Context) error

	// Reset prepares the engine for reuse by a subsequent call, per
	// spec.md §4.8: "a released instance must be stopped or reset
	// before reuse."
	Reset() error
}

// SynthesizerEngine synthesizes one utterance of speech into PCM16
// frames delivered via onFrame, honoring cancellation.
type SynthesizerEngine interface {
	// Synthesize speaks text in the given voice/style/rate, invoking
	// onFrame for each PCM16 chunk as it becomes available. Returns
	// when synthesis completes, errors, or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice VoiceParams, onFrame func([]byte) error) error

	// Reset prepares the engine for reuse.
	Reset() error
}

// VoiceParams configures one synthesis call. Defaults per spec.md §9:
// style="chat", rate="+3%".
type VoiceParams struct {
	Voice string
	Style string
	Rate  string
}

const (
	defaultStyle = "chat"
	defaultRate  = "+3%"
)

// WithDefaults fills Style/Rate with spec.md §9 defaults when unset.
func (v VoiceParams) WithDefaults() VoiceParams {
	if v.Style == "" {
		v.Style = defaultStyle
	}
	if v.Rate == "" {
		v.Rate = defaultRate
	}
	return v
}

// azureRecognizer implements RecognizerEngine against the Azure push
// stream pattern: the push stream is created and the recognizer
// constructed once in Start, and PushAudio writes into the still-open
// stream for the life of the engine (pre-warmed, per spec.md §4.2).
type azureRecognizer struct {
	logger       commons.Logger
	subKey       string
	region       string
	lang         string
	sampleRateHz uint32

	stream     *audio.PushAudioInputStream
	recognizer *speech.SpeechRecognizer
}

// NewAzureRecognizer builds a RecognizerEngine bound to one Azure Speech
// subscription/region. The returned engine is idle until Start.
func NewAzureRecognizer(logger commons.Logger, subscriptionKey, region, language string) RecognizerEngine {
	return &azureRecognizer{
		logger:       logger,
		subKey:       subscriptionKey,
		region:       region,
		lang:         language,
		sampleRateHz: 16000,
	}
}

func (a *azureRecognizer) Start(ctx context.Context, cb RecognizerCallbacks) error {
	format, err := audio.GetWaveFormatPCM(a.sampleRateHz, 16, 1)
	if err != nil {
		return fmt.Errorf("speech: wave format: %w", err)
	}
	defer format.Close()

	stream, err := audio.CreatePushAudioInputStreamFromFormat(format)
	if err != nil {
		return fmt.Errorf("speech: push stream: %w", err)
	}

	audioConfig, err := audio.NewAudioConfigFromStreamInput(stream)
	if err != nil {
		stream.Close()
		return fmt.Errorf("speech: audio config: %w", err)
	}
	defer audioConfig.Close()

	speechConfig, err := speech.NewSpeechConfigFromSubscription(a.subKey, a.region)
	if err != nil {
		stream.Close()
		return fmt.Errorf("speech: speech config: %w", err)
	}
	defer speechConfig.Close()
	speechConfig.SetSpeechRecognitionLanguage(a.lang)

	recognizer, err := speech.NewSpeechRecognizerFromConfig(speechConfig, audioConfig)
	if err != nil {
		stream.Close()
		return fmt.Errorf("speech: new recognizer: %w", err)
	}

	if cb.OnPartial != nil {
		recognizer.Recognizing(func(e speech.SpeechRecognitionEventArgs) {
			defer e.Close()
			cb.OnPartial(e.Result.Text, a.lang)
		})
	}
	if cb.OnFinal != nil {
		recognizer.Recognized(func(e speech.SpeechRecognitionEventArgs) {
			defer e.Close()
			if e.Result.Reason == common.RecognizedSpeech {
				cb.OnFinal(e.Result.Text, a.lang)
			}
		})
	}
	if cb.OnError != nil {
		recognizer.Canceled(func(e speech.SpeechRecognitionCanceledEventArgs) {
			defer e.Close()
			cb.OnError(fmt.Errorf("speech: recognition canceled: %s", e.ErrorDetails))
		})
	}

	task := recognizer.StartContinuousRecognitionAsync()
	select {
	case err := <-task:
		if err != nil {
			recognizer.Close()
			stream.Close()
			return fmt.Errorf("speech: start continuous recognition: %w", err)
		}
	case <-ctx.Done():
		recognizer.Close()
		stream.Close()
		return ctx.Err()
	}

	a.stream = stream
	a.recognizer = recognizer
	return nil
}

func (a *azureRecognizer) PushAudio(frame []byte) error {
	if a.stream == nil {
		return fmt.Errorf("speech: push stream not started")
	}
	return a.stream.Write(frame)
}

func (a *azureRecognizer) Stop(ctx context.Context) error {
	if a.recognizer == nil {
		return nil
	}
	task := a.recognizer.StopContinuousRecognitionAsync()
	select {
	case err := <-task:
		if err != nil {
			a.logger.Warnw("speech: stop continuous recognition", "error", err)
		}
	case <-ctx.Done():
	}
	if a.stream != nil {
		a.stream.CloseStream()
	}
	return nil
}

func (a *azureRecognizer) Reset() error {
	if a.recognizer != nil {
		a.recognizer.Close()
		a.recognizer = nil
	}
	if a.stream != nil {
		a.stream.Close()
		a.stream = nil
	}
	return nil
}

// azureSynthesizer implements SynthesizerEngine against Azure's
// pull-audio-output pattern: each Synthesize call drives a fresh
// SpeechSynthesizer bound to the requested voice/style/rate SSML.
type azureSynthesizer struct {
	logger commons.Logger
	subKey string
	region string
	lang   string
}

// NewAzureSynthesizer builds a SynthesizerEngine bound to one Azure
// Speech subscription/region.
func NewAzureSynthesizer(logger commons.Logger, subscriptionKey, region, language string) SynthesizerEngine {
	return &azureSynthesizer{logger: logger, subKey: subscriptionKey, region: region, lang: language}
}

func (a *azureSynthesizer) Synthesize(ctx context.Context, text string, voice VoiceParams, onFrame func([]byte) error) error {
	voice = voice.WithDefaults()

	speechConfig, err := speech.NewSpeechConfigFromSubscription(a.subKey, a.region)
	if err != nil {
		return fmt.Errorf("speech: synth config: %w", err)
	}
	defer speechConfig.Close()
	speechConfig.SetSpeechSynthesisOutputFormat(common.Raw16Khz16BitMonoPcm)

	synthesizer, err := speech.NewSpeechSynthesizerFromConfig(speechConfig, nil)
	if err != nil {
		return fmt.Errorf("speech: new synthesizer: %w", err)
	}
	defer synthesizer.Close()

	ssml := buildSSML(text, a.lang, voice)

	task := synthesizer.StartSpeakingSsmlAsync(ssml)
	var result speech.SpeechSynthesisOutcome
	select {
	case result = <-task:
	case <-ctx.Done():
		return ctx.Err()
	}
	if result.Error != nil {
		return fmt.Errorf("speech: synthesis start: %w", result.Error)
	}
	defer result.Result.Close()

	stream, err := speech.NewAudioDataStreamFromSpeechSynthesisResult(result.Result)
	if err != nil {
		return fmt.Errorf("speech: audio data stream: %w", err)
	}
	defer stream.Close()

	buf := make([]byte, 3200) // 100ms @ 16kHz/16-bit/mono
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := stream.Read(buf)
		if n > 0 {
			if ferr := onFrame(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
	}
	return nil
}

func (a *azureSynthesizer) Reset() error { return nil }

func buildSSML(text, lang string, voice VoiceParams) string {
	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="%s">`+
			`<voice name="%s"><mstts:express-as style="%s"><prosody rate="%s">%s</prosody></mstts:express-as></voice></speak>`,
		lang, voice.Voice, voice.Style, voice.Rate, escapeSSML(text))
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeSSML(s string) string {
	return ssmlEscaper.Replace(s)
}
