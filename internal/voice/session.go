// Package voice bridges a browser WebSocket to the realtime voice provider.
// The relay is a courier: frames are forwarded unchanged in both directions
// and the only frame it originates is one session.update, sent after the
// provider announces session.created.
package voice

import (
	"encoding/json"
	"strings"
)

// DefaultVoice is used when the caller asks for none or an unknown one.
const DefaultVoice = "alloy"

// Voices are the personas the provider accepts.
var Voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

// NormalizeVoice returns v if it is a known voice, else DefaultVoice.
func NormalizeVoice(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, known := range Voices {
		if v == known {
			return v
		}
	}
	return DefaultVoice
}

const instructions = `Você é o Assistente ConnectAI, um assistente de saúde e bem-estar amigável e profissional que fala português brasileiro.

Suas responsabilidades:
- Fornecer informações gerais sobre saúde, nutrição, exercícios e bem-estar
- Oferecer dicas práticas e baseadas em evidências
- Incentivar hábitos saudáveis
- Ser empático, acolhedor e conversacional

Importante:
- NUNCA forneça diagnósticos médicos
- NUNCA prescreva medicamentos
- SEMPRE recomende consultar um profissional de saúde para questões médicas específicas
- Seja natural e conversacional no modo de voz
- Use uma linguagem simples e acessível`

type transcription struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// Session is the provider session configuration.
type Session struct {
	Modalities              []string      `json:"modalities"`
	Instructions            string        `json:"instructions"`
	Voice                   string        `json:"voice"`
	InputAudioFormat        string        `json:"input_audio_format"`
	OutputAudioFormat       string        `json:"output_audio_format"`
	InputAudioTranscription transcription `json:"input_audio_transcription"`
	TurnDetection           turnDetection `json:"turn_detection"`
	Temperature             float64       `json:"temperature"`
	MaxResponseOutputTokens int           `json:"max_response_output_tokens"`
}

type sessionUpdate struct {
	Type    string  `json:"type"`
	Session Session `json:"session"`
}

// NewSession returns the fixed session configuration for voice.
func NewSession(voice string) Session {
	return Session{
		Modalities:              []string{"text", "audio"},
		Instructions:            instructions,
		Voice:                   NormalizeVoice(voice),
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: transcription{Model: "whisper-1"},
		TurnDetection: turnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMS:   300,
			SilenceDurationMS: 1000,
		},
		Temperature:             0.8,
		MaxResponseOutputTokens: 4096,
	}
}

// SessionUpdateFrame encodes the session.update event for voice.
func SessionUpdateFrame(voice string) ([]byte, error) {
	return json.Marshal(sessionUpdate{Type: "session.update", Session: NewSession(voice)})
}

// eventType extracts the "type" field of a JSON event, or "".
func eventType(data []byte) string {
	var ev struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &ev) != nil {
		return ""
	}
	return ev.Type
}
