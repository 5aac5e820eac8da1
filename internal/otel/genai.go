package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic convention attribute keys for LLM observability,
// following the OpenTelemetry GenAI SIG conventions.
const (
	GenAISystem       = attribute.Key("gen_ai.system")
	GenAIRequestModel = attribute.Key("gen_ai.request.model")

	GenAIRequestTemperature = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens   = attribute.Key("gen_ai.request.max_tokens")

	GenAIUsageInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens = attribute.Key("gen_ai.usage.output_tokens")

	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
)

// LLMRequestAttributes creates standard attributes for LLM requests.
func LLMRequestAttributes(system, model string, temperature float64, maxTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIRequestModel.String(model),
		GenAIRequestTemperature.Float64(temperature),
		GenAIRequestMaxTokens.Int(maxTokens),
	}
}

// LLMUsageAttributes creates attributes for token usage.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
}
