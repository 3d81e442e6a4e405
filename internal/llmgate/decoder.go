package llmgate

import (
	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/pkg/provider/llm"
)

// decoder turns the generic completion request into one tuned for a
// decoding strategy.
type decoder interface {
	name() string
	apply(req llm.CompletionRequest) llm.CompletionRequest
}

// greedyDecoder emits deterministic completions with a tight token budget.
// Used on CPU where every extra token costs wall-clock time.
type greedyDecoder struct {
	maxTokens int
}

func (d greedyDecoder) name() string { return "greedy" }

func (d greedyDecoder) apply(req llm.CompletionRequest) llm.CompletionRequest {
	req.MaxTokens = d.maxTokens
	req.Temperature = 0
	req.TopP = 0
	return req
}

// samplingDecoder emits temperature-sampled completions with the larger
// accelerator token budget.
type samplingDecoder struct {
	maxTokens   int
	temperature float64
	topP        float64
}

func (d samplingDecoder) name() string { return "sampling" }

func (d samplingDecoder) apply(req llm.CompletionRequest) llm.CompletionRequest {
	req.MaxTokens = d.maxTokens
	req.Temperature = d.temperature
	req.TopP = d.topP
	return req
}

// decoder picks the strategy for the device. The auto setting maps CPU to
// greedy and anything else to sampling.
func (g *Gateway) decoder(device Device) decoder {
	strategy := g.cfg.Decoding
	if strategy == "" || strategy == config.DecodingAuto {
		if device == DeviceCPU {
			strategy = config.DecodingGreedy
		} else {
			strategy = config.DecodingSampling
		}
	}

	if strategy == config.DecodingGreedy {
		return greedyDecoder{maxTokens: g.cfg.MaxNewTokensCPU}
	}
	return samplingDecoder{
		maxTokens:   g.cfg.MaxNewTokensAccel,
		temperature: g.cfg.Temperature,
		topP:        g.cfg.TopP,
	}
}
