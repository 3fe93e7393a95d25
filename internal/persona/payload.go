package persona

// Provider-side defaults for the manager persona.
const (
	DefaultReplicaID = "r92debe21318"
	LLMModel         = "tavus-gpt-4o"
	PerceptionModel  = "raven-0"
	TTSEngine        = "elevenlabs"
	PipelineMode     = "full"

	InspirationTool   = "find_inspiration"
	EmotionSignalTool = "user_performance_emotion_signal"
)

const personaContext = "You are an engineering manager holding a difficult 1:1 performance conversation. " +
	"The goal is to clarify performance expectations, explain where the employee has fallen short, " +
	"and walk them through a Performance Improvement Plan (PIP) with empathy and clarity. " +
	"You expect them to start off sounding casual, but you rely on Raven-0 perception signals " +
	"to notice when they become sad, tearful, angry, or shut down so you can slow down, " +
	"empathize, and de-escalate. When the user is deeply down or angry, you may call the " +
	"`find_inspiration` tool to pull short, relevant words of wisdom to integrate into your coaching."

const perceptionToolPrompt = "Use the `user_performance_emotion_signal` tool whenever the user's facial expression " +
	"or body language suggests a strong emotional state related to this performance conversation, " +
	"such as sadness, crying, anger, visible shock, or emotional shutdown. " +
	"Only call this tool when you have a reasonably confident signal; otherwise, do not call it."

var ambientAwarenessQueries = []string{
	"Does the user's face show signs of sadness or feeling down (e.g., drooping eyes, downturned mouth)?",
	"Does the user appear to be crying or on the verge of tears (e.g., watery eyes, wiping their face)?",
	"Does the user appear angry or frustrated (e.g., clenched jaw, furrowed brows, tight lips)?",
	"Has the user's emotional state visibly shifted from casual to noticeably distressed or upset?",
}

// Payload is the body of a persona creation request.
type Payload struct {
	PersonaName      string `json:"persona_name"`
	PipelineMode     string `json:"pipeline_mode"`
	SystemPrompt     string `json:"system_prompt"`
	Context          string `json:"context"`
	DefaultReplicaID string `json:"default_replica_id"`
	Layers           Layers `json:"layers"`
}

// Layers configures the provider pipeline stages.
type Layers struct {
	LLM        LLMLayer        `json:"llm"`
	TTS        TTSLayer        `json:"tts"`
	STT        STTLayer        `json:"stt"`
	Perception PerceptionLayer `json:"perception"`
}

type LLMLayer struct {
	Model                string `json:"model"`
	SpeculativeInference bool   `json:"speculative_inference"`
	Tools                []Tool `json:"tools,omitempty"`
}

type TTSLayer struct {
	Engine string `json:"tts_engine"`
}

type STTLayer struct {
	PauseSensitivity     string `json:"participant_pause_sensitivity"`
	InterruptSensitivity string `json:"participant_interrupt_sensitivity"`
	SmartTurnDetection   bool   `json:"smart_turn_detection"`
}

type PerceptionLayer struct {
	Model                   string   `json:"perception_model"`
	AmbientAwarenessQueries []string `json:"ambient_awareness_queries,omitempty"`
	ToolPrompt              string   `json:"perception_tool_prompt,omitempty"`
	Tools                   []Tool   `json:"perception_tools,omitempty"`
}

// Tool is a function tool exposed to a pipeline layer.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

type ToolParameters struct {
	Type       string                   `json:"type"`
	Properties map[string]ToolParameter `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

type ToolParameter struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Minimum     *int   `json:"minimum,omitempty"`
	Maximum     *int   `json:"maximum,omitempty"`
}

// BuildPayload assembles the persona request for scenario using an already
// rendered system prompt.
func BuildPayload(scenario Scenario, systemPrompt string) Payload {
	return Payload{
		PersonaName:      "Jordan – " + scenario.Label,
		PipelineMode:     PipelineMode,
		SystemPrompt:     systemPrompt,
		Context:          personaContext,
		DefaultReplicaID: DefaultReplicaID,
		Layers: Layers{
			LLM: LLMLayer{
				Model:                LLMModel,
				SpeculativeInference: true,
				Tools:                []Tool{inspirationTool()},
			},
			TTS: TTSLayer{Engine: TTSEngine},
			STT: STTLayer{
				PauseSensitivity:     "medium",
				InterruptSensitivity: "medium",
				SmartTurnDetection:   true,
			},
			Perception: PerceptionLayer{
				Model:                   PerceptionModel,
				AmbientAwarenessQueries: append([]string(nil), ambientAwarenessQueries...),
				ToolPrompt:              perceptionToolPrompt,
				Tools:                   []Tool{emotionSignalTool()},
			},
		},
	}
}

func inspirationTool() Tool {
	minResults, maxResults := 1, 5
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name: InspirationTool,
			Description: "Search the web for short, relevant inspirational words of wisdom, " +
				"quotes, or reframes that can help the user feel calmer, more hopeful, " +
				"or more resilient during a difficult performance conversation.",
			Parameters: ToolParameters{
				Type: "object",
				Properties: map[string]ToolParameter{
					"topic": {
						Type: "string",
						Description: "A short phrase describing the focus of the inspiration, " +
							"e.g. 'resilience after failure', 'growth mindset', " +
							"'second chances at work', 'handling criticism'.",
					},
					"max_results": {
						Type: "integer",
						Description: "Maximum number of inspirational snippets or quotes to return. " +
							"Default is 3. Usually 1–3 is enough.",
						Minimum: &minResults,
						Maximum: &maxResults,
					},
				},
				Required: []string{"topic"},
			},
		},
	}
}

func emotionSignalTool() Tool {
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name: EmotionSignalTool,
			Description: "Report the user's emotional state during this performance conversation " +
				"as inferred from facial expression and body language. This allows the persona " +
				"to slow down, empathize, and de-escalate when needed.",
			Parameters: ToolParameters{
				Type: "object",
				Properties: map[string]ToolParameter{
					"emotional_state": {
						Type: "string",
						Description: "The inferred emotion, such as 'sad', 'crying', 'angry', " +
							"'frustrated', 'shocked', 'shutting_down', or 'calm'.",
					},
					"indicator": {
						Type: "string",
						Description: "Brief description of what Raven observed that supports this " +
							"inference, e.g. 'eyes filling with tears', 'wiping eyes', " +
							"'clenched jaw', 'raised voice', 'looking away silently'.",
					},
				},
				Required: []string{"emotional_state", "indicator"},
			},
		},
	}
}
