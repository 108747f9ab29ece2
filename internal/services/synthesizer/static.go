package synthesizer

import "context"

// StaticNarrative is the fallback generator used when no collaborator is
// configured. It keeps the engine usable: jobs still complete with the
// deterministic summary and findings, plus a fixed notice instead of a
// generated narrative.
type StaticNarrative struct{}

func (StaticNarrative) Generate(_ context.Context, _ string) (string, error) {
	return "## Narrative Unavailable\n\n" +
		"No generative collaborator is configured (set GEMINI_API_KEY). " +
		"The deterministic scan results above are complete; configure the " +
		"collaborator to receive a full analyst narrative and remediation guide.", nil
}
